package encoder

import (
	"encoding/binary"
	"math"
	"testing"
)

func genSamples(n int) []int16 {
	samples := make([]int16, n)
	for i := range samples {
		samples[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/SampleRate))
	}
	return samples
}

func feedBlocks(t *testing.T, enc Encoder, samples []int16) uint64 {
	t.Helper()
	var fed uint64
	for i := 0; i < len(samples); i += BlockSize {
		end := min(i+BlockSize, len(samples))
		if err := enc.EncodeBlock(samples[i:end]); err != nil {
			t.Fatalf("EncodeBlock at offset %d: %v", i, err)
		}
		fed += uint64(end - i)
	}
	return fed
}

func TestFlacEncoder(t *testing.T) {
	samples := genSamples(SampleRate) // 1s

	enc, err := NewFlac()
	if err != nil {
		t.Fatalf("NewFlac: %v", err)
	}

	fed := feedBlocks(t, enc, samples)

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if enc.TotalFrames() != fed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), fed)
	}

	flacData := enc.Bytes()
	if len(flacData) < 4 || string(flacData[:4]) != "fLaC" {
		t.Fatal("output does not start with FLAC magic")
	}
}

func TestWavEncoder(t *testing.T) {
	samples := genSamples(SampleRate / 2)

	enc := NewWav()
	fed := feedBlocks(t, enc, samples)

	if err := enc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	out := enc.Bytes()
	if len(out) != 44+len(samples)*2 {
		t.Fatalf("output length = %d, want %d", len(out), 44+len(samples)*2)
	}
	if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
		t.Fatal("bad RIFF header")
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != SampleRate {
		t.Errorf("sample rate in header = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(samples)*2) {
		t.Errorf("data length in header = %d, want %d", got, len(samples)*2)
	}
	if enc.TotalFrames() != fed {
		t.Errorf("TotalFrames = %d, want %d", enc.TotalFrames(), fed)
	}
}

func TestNewSelectsFormat(t *testing.T) {
	if _, err := New("flac"); err != nil {
		t.Errorf("New(flac): %v", err)
	}
	if _, err := New("wav"); err != nil {
		t.Errorf("New(wav): %v", err)
	}
	if _, err := New("ogg"); err == nil {
		t.Error("expected error for unknown format")
	}
}
