package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

const (
	vadFrameMs    = 20
	vadFrameBytes = SampleRate * vadFrameMs / 1000 * 2 // 640 bytes
	vadDebounce   = 3                                  // consecutive speech frames to confirm voice

	// RMS of a normalized 16-bit frame above which the frame counts as speech.
	// Tuned against the capture gain applied by the pulse backend.
	vadRMSThreshold = 0.015
)

// SpeechDetector classifies 20ms PCM frames as speech or silence by signal
// energy and keeps running counters for the silence monitor.
type SpeechDetector struct {
	mu            sync.Mutex
	buf           []byte
	voiceDetected bool
	lastVoiceTime time.Time
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
	lastLevel     float64
}

func NewSpeechDetector() *SpeechDetector {
	return &SpeechDetector{}
}

func frameRMS(frame []byte) float64 {
	var sumSquares float64
	for i := 0; i+1 < len(frame); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(frame[i:]))
		normalized := float64(sample) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(len(frame)/2))
}

func (p *SpeechDetector) Process(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, data...)
	for len(p.buf) >= vadFrameBytes {
		frame := p.buf[:vadFrameBytes]
		p.buf = p.buf[vadFrameBytes:]

		rms := frameRMS(frame)
		p.lastLevel = rms
		active := rms >= vadRMSThreshold

		p.totalFrames++
		if active {
			p.speechFrames++
			p.speechRun++
			if p.voiceDetected {
				p.lastVoiceTime = time.Now()
			} else if p.speechRun >= vadDebounce {
				p.voiceDetected = true
				p.lastVoiceTime = time.Now()
			}
		} else {
			p.speechRun = 0
		}
	}
}

func (p *SpeechDetector) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *SpeechDetector) LastVoiceTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVoiceTime
}

// Level returns the RMS of the most recently processed frame, for meters.
func (p *SpeechDetector) Level() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastLevel
}

const speechThreshold = 0.10 // 10% of frames must be speech to count as "speaking"

// HasSpeechTick reports whether speech dominated the frames processed since
// the previous call. One call per monitor tick.
func (p *SpeechDetector) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechThreshold
}

func (p *SpeechDetector) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.voiceDetected = false
	p.lastVoiceTime = time.Time{}
	p.speechRun = 0
}
