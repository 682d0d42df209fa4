package transcriber

import (
	"encoding/binary"
	"strings"
	"sync"
	"time"

	"quill/encoder"
)

type transcribeFunc func(audio []byte, format string) (*Result, error)

// batchSession accumulates PCM, encodes it concurrently block by block, and
// submits the whole payload once on Close.
type batchSession struct {
	cfg        SessionConfig
	transcribe transcribeFunc
	encoder    encoder.Encoder
	updates    chan Update
	blockChan  chan []int16
	encodeDone chan struct{}
	sampleBuf  []int16
	bufMu      sync.Mutex
	closed     bool
}

func newBatchSession(cfg SessionConfig, transcribe transcribeFunc) (*batchSession, error) {
	enc, err := encoder.New(cfg.Format)
	if err != nil {
		return nil, err
	}

	bs := &batchSession{
		cfg:        cfg,
		transcribe: transcribe,
		encoder:    enc,
		updates:    make(chan Update),
		blockChan:  make(chan []int16, 64),
		encodeDone: make(chan struct{}),
	}

	go func() {
		defer close(bs.encodeDone)
		for block := range bs.blockChan {
			start := time.Now()
			bs.encoder.EncodeBlock(block)
			bs.encoder.AddEncodeTime(time.Since(start))
		}
	}()

	return bs, nil
}

func (bs *batchSession) Feed(pcm []byte) {
	bs.bufMu.Lock()
	if bs.closed {
		bs.bufMu.Unlock()
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		bs.sampleBuf = append(bs.sampleBuf, int16(binary.LittleEndian.Uint16(pcm[i:])))
	}
	var blocks [][]int16
	for len(bs.sampleBuf) >= encoder.BlockSize {
		block := make([]int16, encoder.BlockSize)
		copy(block, bs.sampleBuf[:encoder.BlockSize])
		bs.sampleBuf = bs.sampleBuf[encoder.BlockSize:]
		blocks = append(blocks, block)
	}
	bs.bufMu.Unlock()

	for _, block := range blocks {
		bs.blockChan <- block
	}
}

func (bs *batchSession) Updates() <-chan Update {
	return bs.updates
}

// Cancel drops all buffered audio without submitting anything.
func (bs *batchSession) Cancel() {
	bs.bufMu.Lock()
	if bs.closed {
		bs.bufMu.Unlock()
		return
	}
	bs.closed = true
	bs.sampleBuf = nil
	bs.bufMu.Unlock()

	close(bs.blockChan)
	<-bs.encodeDone
	close(bs.updates)
	bs.encoder.Close()
}

func (bs *batchSession) Close() (SessionResult, error) {
	// Flush remaining samples
	bs.bufMu.Lock()
	if bs.closed {
		bs.bufMu.Unlock()
		return SessionResult{}, nil
	}
	bs.closed = true
	if len(bs.sampleBuf) > 0 {
		partial := make([]int16, len(bs.sampleBuf))
		copy(partial, bs.sampleBuf)
		bs.sampleBuf = nil
		bs.blockChan <- partial
	}
	bs.bufMu.Unlock()

	close(bs.blockChan)
	<-bs.encodeDone
	close(bs.updates)

	if err := bs.encoder.Close(); err != nil {
		return SessionResult{}, err
	}

	audioData := bs.encoder.Bytes()
	audioS := float64(bs.encoder.TotalFrames()) / float64(encoder.SampleRate)

	result, err := bs.transcribe(audioData, bs.cfg.Format)
	if err != nil {
		return SessionResult{AudioS: audioS}, err
	}

	text := strings.TrimSpace(result.Text)
	noSpeech := text == ""

	return SessionResult{
		Text:      text,
		HasText:   !noSpeech,
		NoSpeech:  noSpeech,
		AudioS:    audioS,
		RateLimit: result.RateLimit,
	}, nil
}
