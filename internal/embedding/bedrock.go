package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/smithy-go"
)

// BedrockAPI is the slice of the Bedrock runtime client Bedrock uses.
type BedrockAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Bedrock embeds text with an Amazon Titan text embedding model.
type Bedrock struct {
	client  BedrockAPI
	modelID string
	dim     int
}

type titanRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions,omitempty"`
	Normalize  bool   `json:"normalize"`
}

type titanResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}

// NewBedrock creates the embedder. modelID defaults to
// amazon.titan-embed-text-v2:0.
func NewBedrock(client BedrockAPI, modelID string, dim int) (*Bedrock, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("bedrock embedder: dimension must be > 0, got %d", dim)
	}
	if modelID == "" {
		modelID = "amazon.titan-embed-text-v2:0"
	}
	return &Bedrock{client: client, modelID: modelID, dim: dim}, nil
}

// NewBedrockFromConfig builds the runtime client from an AWS config.
func NewBedrockFromConfig(cfg aws.Config, modelID string, dim int) (*Bedrock, error) {
	return NewBedrock(bedrockruntime.NewFromConfig(cfg), modelID, dim)
}

func (b *Bedrock) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(titanRequest{InputText: text, Dimensions: b.dim, Normalize: true})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	out, err := b.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(b.modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if retryableAWSError(err) {
			return nil, fmt.Errorf("%w: invoke %s: %w", ErrTransient, b.modelID, err)
		}
		return nil, fmt.Errorf("invoke %s: %w", b.modelID, err)
	}

	var resp titanResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse Titan response: %w", err)
	}
	if len(resp.Embedding) != b.dim {
		return nil, fmt.Errorf("%w: model %s returned %d, want %d", ErrDimensionMismatch, b.modelID, len(resp.Embedding), b.dim)
	}
	return Normalize(resp.Embedding), nil
}

func (b *Bedrock) Dimensions() int { return b.dim }

// retryableAWSError treats throttling and service-side faults as transient.
// Errors without an API code (connection failures) are transient too.
func retryableAWSError(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return true
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ServiceUnavailableException", "InternalServerException", "ModelNotReadyException", "ModelTimeoutException":
		return true
	}
	return apiErr.ErrorFault() == smithy.FaultServer
}
