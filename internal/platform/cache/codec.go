package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec converts cached values to and from the bytes a Store holds.
type Codec[V any] interface {
	Encode(v V) ([]byte, error)
	Decode(data []byte) (V, error)
}

// JSONCodec encodes values as JSON.
type JSONCodec[V any] struct{}

func (JSONCodec[V]) Encode(v V) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func (JSONCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return v, nil
}

// MsgpackCodec encodes values as MessagePack.
type MsgpackCodec[V any] struct{}

func (MsgpackCodec[V]) Encode(v V) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value: %w", err)
	}
	return data, nil
}

func (MsgpackCodec[V]) Decode(data []byte) (V, error) {
	var v V
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return v, nil
}

// BytesCodec stores byte slices as they are.
type BytesCodec struct{}

// Encode copies v. A nil or empty slice encodes to an empty, non-nil one.
func (BytesCodec) Encode(v []byte) ([]byte, error) {
	return append([]byte{}, v...), nil
}

func (BytesCodec) Decode(data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

// StringCodec stores strings as raw UTF-8.
type StringCodec struct{}

func (StringCodec) Encode(v string) ([]byte, error) { return []byte(v), nil }

func (StringCodec) Decode(data []byte) (string, error) { return string(data), nil }

// CodecByName returns the JSON or msgpack codec for V.
func CodecByName[V any](name string) (Codec[V], error) {
	switch name {
	case "", "json":
		return JSONCodec[V]{}, nil
	case "msgpack":
		return MsgpackCodec[V]{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
