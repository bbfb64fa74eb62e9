package cache

import (
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Remote values carry a one byte frame header.
const (
	frameRaw  byte = 0
	frameZstd byte = 1
)

var errBadFrame = errors.New("cache: bad value frame")

type codec struct {
	threshold int
	enc       *zstd.Encoder
	dec       *zstd.Decoder
}

func newCodec(threshold int) (*codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	return &codec{threshold: threshold, enc: enc, dec: dec}, nil
}

func (c *codec) encode(raw []byte) []byte {
	if c.threshold > 0 && len(raw) >= c.threshold {
		return c.enc.EncodeAll(raw, []byte{frameZstd})
	}
	out := make([]byte, 0, len(raw)+1)
	out = append(out, frameRaw)
	return append(out, raw...)
}

func (c *codec) decode(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, errBadFrame
	}
	switch framed[0] {
	case frameRaw:
		return framed[1:], nil
	case frameZstd:
		return c.dec.DecodeAll(framed[1:], nil)
	default:
		return nil, errBadFrame
	}
}

func (c *codec) close() {
	_ = c.enc.Close()
	c.dec.Close()
}
