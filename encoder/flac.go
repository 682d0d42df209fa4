package encoder

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FlacEncoder packs mono PCM16 blocks into an in-memory FLAC stream.
// Lossless, so the providers decode exactly what the microphone produced,
// at roughly half the upload size of raw WAV.
type FlacEncoder struct {
	mu      sync.Mutex
	out     bytes.Buffer
	enc     *flac.Encoder
	frames  uint64
	elapsed time.Duration
}

func NewFlac() (*FlacEncoder, error) {
	fe := &FlacEncoder{}
	enc, err := flac.NewEncoder(&fe.out, &meta.StreamInfo{
		BlockSizeMin:  BlockSize,
		BlockSizeMax:  BlockSize,
		SampleRate:    SampleRate,
		NChannels:     Channels,
		BitsPerSample: BitsPerSample,
	})
	if err != nil {
		return nil, fmt.Errorf("creating flac encoder: %w", err)
	}
	enc.EnablePredictionAnalysis(true)
	fe.enc = enc
	return fe, nil
}

func (fe *FlacEncoder) EncodeBlock(block []int16) error {
	fe.mu.Lock()
	defer fe.mu.Unlock()

	samples := make([]int32, len(block))
	for i, s := range block {
		samples[i] = int32(s)
	}

	// One mono subframe per block; the encoder picks the predictor.
	f := &frame.Frame{
		Header: frame.Header{
			BlockSize:     uint16(len(block)),
			SampleRate:    SampleRate,
			Channels:      frame.ChannelsMono,
			BitsPerSample: BitsPerSample,
		},
		Subframes: []*frame.Subframe{{
			SubHeader: frame.SubHeader{Pred: frame.PredVerbatim},
			Samples:   samples,
			NSamples:  len(block),
		}},
	}
	if err := fe.enc.WriteFrame(f); err != nil {
		return fmt.Errorf("writing flac frame: %w", err)
	}
	fe.frames += uint64(len(block))
	return nil
}

// Close flushes the stream trailer. Bytes is only complete afterwards.
func (fe *FlacEncoder) Close() error {
	return fe.enc.Close()
}

func (fe *FlacEncoder) Bytes() []byte {
	return fe.out.Bytes()
}

func (fe *FlacEncoder) TotalFrames() uint64 {
	return fe.frames
}

func (fe *FlacEncoder) AddEncodeTime(d time.Duration) {
	fe.mu.Lock()
	fe.elapsed += d
	fe.mu.Unlock()
}

func (fe *FlacEncoder) EncodeTime() time.Duration {
	return fe.elapsed
}
