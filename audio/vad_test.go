package audio

import (
	"encoding/binary"
	"math"
	"testing"
)

func genTone(freq float64, durationMs int) []byte {
	n := SampleRate * durationMs / 1000
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		sample := int16(16000 * math.Sin(2*math.Pi*freq*float64(i)/float64(SampleRate)))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(sample))
	}
	return buf
}

func genSilence(durationMs int) []byte {
	return make([]byte, SampleRate*durationMs/1000*2)
}

func TestDetectorTone(t *testing.T) {
	d := NewSpeechDetector()
	// 200ms of 440Hz tone, well above the energy threshold
	d.Process(genTone(440, 200))
	if !d.VoiceDetected() {
		t.Error("expected voice detection on loud tone")
	}
}

func TestDetectorSilence(t *testing.T) {
	d := NewSpeechDetector()
	d.Process(genSilence(500))
	if d.VoiceDetected() {
		t.Error("detected voice in pure silence")
	}
	if d.HasSpeechTick() {
		t.Error("speech tick set during silence")
	}
}

func TestDetectorDebounce(t *testing.T) {
	d := NewSpeechDetector()
	// A single 20ms loud frame must not flip detection (debounce is 3 frames)
	d.Process(genTone(440, 20))
	if d.VoiceDetected() {
		t.Error("single frame should not confirm voice")
	}
}

func TestDetectorReset(t *testing.T) {
	d := NewSpeechDetector()
	d.Process(genTone(440, 200))
	d.Reset()
	if d.VoiceDetected() {
		t.Error("reset did not clear voice detection")
	}
}

func TestHasSpeechTickDelta(t *testing.T) {
	d := NewSpeechDetector()
	d.Process(genTone(440, 200))
	if !d.HasSpeechTick() {
		t.Error("expected speech in first tick window")
	}
	// Follow-on silence dominates the next window
	d.Process(genSilence(400))
	if d.HasSpeechTick() {
		t.Error("expected no speech in silent tick window")
	}
}

func TestIsBluetooth(t *testing.T) {
	for _, tt := range []struct {
		name string
		want bool
	}{
		{"AirPods Pro", true},
		{"Sony WH-1000XM4", true},
		{"Built-in Audio Analog Stereo", false},
		{"USB Microphone", false},
		{"Jabra Elite 75t", true},
	} {
		if got := IsBluetooth(tt.name); got != tt.want {
			t.Errorf("IsBluetooth(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
