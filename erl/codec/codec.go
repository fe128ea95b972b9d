// Package codec turns terms into bytes for the trip between nodes.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec is safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Msgpack encodes with msgpack. Structs are encoded by field name, honouring
// `msgpack` struct tags. Untyped targets decode maps as map[string]any.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("msgpack: %w", err)
	}
	return buf.Bytes(), nil
}

func (Msgpack) Unmarshal(data []byte, v any) error {
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("msgpack: %w", err)
	}
	return nil
}

func (Msgpack) Name() string {
	return "msgpack"
}

const (
	flagRaw byte = iota
	flagS2
)

// DefaultS2Threshold is the payload size from which [S2] compresses.
const DefaultS2Threshold = 512

var ErrCorrupt = errors.New("codec: corrupt frame")

// S2 compresses what [Inner] produces with S2 once it reaches [Threshold]
// bytes. Every frame starts with a byte saying whether it is compressed.
type S2 struct {
	Inner     Codec
	Threshold int
}

// NewS2 wraps [inner] with [DefaultS2Threshold].
func NewS2(inner Codec) S2 {
	return S2{Inner: inner, Threshold: DefaultS2Threshold}
}

func (c S2) Marshal(v any) ([]byte, error) {
	raw, err := c.Inner.Marshal(v)
	if err != nil {
		return nil, err
	}
	if len(raw) < c.Threshold {
		return append([]byte{flagRaw}, raw...), nil
	}
	dst := make([]byte, 1, 1+s2.MaxEncodedLen(len(raw)))
	dst[0] = flagS2
	return append(dst, s2.Encode(nil, raw)...), nil
}

func (c S2) Unmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return ErrCorrupt
	}
	payload := data[1:]
	switch data[0] {
	case flagRaw:
	case flagS2:
		decoded, err := s2.Decode(nil, payload)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		payload = decoded
	default:
		return fmt.Errorf("%w: unknown flag %d", ErrCorrupt, data[0])
	}
	return c.Inner.Unmarshal(payload, v)
}

func (c S2) Name() string {
	return c.Inner.Name() + "+s2"
}

// Default is the codec nodes use unless told otherwise.
func Default() Codec {
	return NewS2(Msgpack{})
}
