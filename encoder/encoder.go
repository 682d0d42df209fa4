package encoder

import (
	"fmt"
	"time"

	"quill/audio"
)

const (
	SampleRate    = audio.SampleRate
	Channels      = audio.Channels
	BitsPerSample = audio.BitsPerSample
	BlockSize     = 4096
)

type Encoder interface {
	EncodeBlock(block []int16) error
	Close() error
	Bytes() []byte
	TotalFrames() uint64
	AddEncodeTime(d time.Duration)
	EncodeTime() time.Duration
}

// New selects an encoder by format name as stored in config.
func New(format string) (Encoder, error) {
	switch format {
	case "flac":
		return NewFlac()
	case "wav":
		return NewWav(), nil
	default:
		return nil, fmt.Errorf("unknown format %q (use flac or wav)", format)
	}
}
