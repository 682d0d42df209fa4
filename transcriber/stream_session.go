package transcriber

import (
	"strings"
	"sync"
	"time"

	"quill/encoder"
	"quill/log"
)

const (
	streamChunkMs      = 200
	streamChunkBytes   = encoder.SampleRate * encoder.Channels * (encoder.BitsPerSample / 8) * streamChunkMs / 1000
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
)

// rawStreamSession is the provider wire protocol: binary PCM out, transcript
// updates in, explicit finalize and close.
type rawStreamSession interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

// streamSession adapts a rawStreamSession to the Session interface. PCM is
// re-chunked to a fixed cadence; final transcript fragments are committed to
// a running text joined with single spaces, and every commit is published on
// Updates. The channel is only written after the connection reports live.
type streamSession struct {
	ws        rawStreamSession
	committed string
	audioCh   chan []byte
	updates   chan Update
	startedAt time.Time
	connected chan struct{} // closed when the socket is ready (or failed)

	sendDone      chan struct{}
	recvDone      chan struct{}
	finalized     chan struct{}
	finalizedOnce sync.Once

	feedBuf []byte
	feedMu  sync.Mutex

	mu        sync.Mutex
	err       error
	errOnce   sync.Once
	closing   bool
	done      bool
	sentBytes uint64
}

func newStreamSession(dial func() (rawStreamSession, error)) *streamSession {
	ss := &streamSession{
		audioCh:   make(chan []byte, 128),
		updates:   make(chan Update, 16),
		startedAt: time.Now(),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
		connected: make(chan struct{}),
	}

	go func() {
		ws, err := dial()
		if err != nil {
			ss.errOnce.Do(func() {
				ss.mu.Lock()
				ss.err = err
				ss.mu.Unlock()
			})
			close(ss.sendDone)
			close(ss.recvDone)
			close(ss.connected)
			return
		}

		ss.ws = ws
		close(ss.connected)
		go ss.runSender()
		go ss.runReceiver()
	}()

	return ss
}

func (s *streamSession) Feed(pcm []byte) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.feedMu.Lock()
	s.feedBuf = append(s.feedBuf, pcm...)
	var chunks [][]byte
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		chunks = append(chunks, chunk)
	}
	s.feedMu.Unlock()

	for _, chunk := range chunks {
		s.audioCh <- chunk
	}
}

func (s *streamSession) Updates() <-chan Update {
	return s.updates
}

// Cancel closes the socket immediately, drops buffered audio and discards
// whatever the server sent. No finalize handshake is attempted.
func (s *streamSession) Cancel() {
	<-s.connected

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.closing = true
	ws := s.ws
	s.mu.Unlock()

	if ws != nil {
		ws.Close()
	}

	go func() { // drain audioCh so any blocked Feed() unblocks
		for range s.audioCh {
		}
	}()
	s.feedMu.Lock()
	s.feedBuf = nil
	s.feedMu.Unlock()
	close(s.audioCh)
	<-s.sendDone
	<-s.recvDone
	close(s.updates)
}

func (s *streamSession) Close() (SessionResult, error) {
	<-s.connected

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return SessionResult{}, nil
	}
	s.done = true
	s.mu.Unlock()

	// If connection failed, drain and return error
	s.mu.Lock()
	if s.err != nil {
		connErr := s.err
		s.mu.Unlock()
		go func() { // drain audioCh so any blocked Feed() unblocks
			for range s.audioCh {
			}
		}()
		s.feedMu.Lock()
		s.feedBuf = nil
		s.feedMu.Unlock()
		close(s.audioCh)
		<-s.sendDone
		<-s.recvDone
		close(s.updates)
		return SessionResult{NoSpeech: true}, connErr
	}
	s.mu.Unlock()

	// Flush remaining buffered PCM. The sender may die at any moment, so
	// never commit to a bare channel send: if it is gone and the channel
	// is full this would block forever.
	s.feedMu.Lock()
	tail := s.feedBuf
	s.feedBuf = nil
	s.feedMu.Unlock()
	if len(tail) > 0 {
		select {
		case s.audioCh <- tail:
		case <-s.sendDone:
		}
	}
	close(s.audioCh)

	<-s.sendDone

	// Wait for server finalize acknowledgment, then a brief quiet period
	select {
	case <-s.finalized:
		time.Sleep(streamFinalizeIdle)
	case <-time.After(streamFinalizeMax):
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.ws.Close()
	select {
	case <-s.recvDone:
	case <-time.After(2 * time.Second):
		log.Warn("stream receiver drain timeout")
	}

	// Guarantee the consumer sees final text even if the last non-blocking
	// send was dropped
	s.mu.Lock()
	finalText := s.committed
	s.mu.Unlock()
	if finalText != "" {
		select {
		case s.updates <- Update{Text: finalText, Final: true}:
		default:
		}
	}
	close(s.updates)

	s.mu.Lock()
	text := s.committed
	sent := s.sentBytes
	sessionErr := s.err
	s.mu.Unlock()

	cleanText := strings.TrimSpace(text)
	noSpeech := cleanText == ""

	return SessionResult{
		Text:     cleanText,
		HasText:  !noSpeech,
		NoSpeech: noSpeech,
		AudioS:   float64(sent) / float64(encoder.SampleRate*encoder.Channels*(encoder.BitsPerSample/8)),
	}, sessionErr
}

func (s *streamSession) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			s.setErr(err)
			for range s.audioCh { // keep Feed and Close unblocked until the channel closes
			}
			return
		}
		s.mu.Lock()
		s.sentBytes += uint64(len(chunk))
		s.mu.Unlock()
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *streamSession) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			s.setErr(err)
			return
		}

		if update.FromFinalize {
			s.finalizedOnce.Do(func() { close(s.finalized) })
		}

		isFinal := update.IsFinal || update.SpeechFinal || update.FromFinalize

		transcript := strings.TrimSpace(update.Transcript)
		if transcript == "" {
			continue
		}

		if !isFinal {
			select {
			case s.updates <- Update{Text: transcript, Final: false}:
			default:
			}
			continue
		}

		s.mu.Lock()
		if s.committed != "" {
			s.committed += " " + transcript
		} else {
			s.committed = transcript
		}
		fullText := s.committed
		s.mu.Unlock()

		select {
		case s.updates <- Update{Text: fullText, Final: true}:
		default:
		}
	}
}

func (s *streamSession) setErr(err error) {
	if err == nil {
		return
	}
	s.errOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		if s.ws != nil {
			s.ws.Close()
		}
	})
}
