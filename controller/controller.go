// Package controller owns the capture-to-injection state machine. Commands
// from the hotkey bridge and UI surfaces funnel through one serialized queue;
// at most one recording session exists at a time, and every exit path
// releases the microphone and closes the transcription channel.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"quill/audio"
	"quill/history"
	"quill/inject"
	"quill/log"
	"quill/transcriber"
)

// Beeper plays short audio cues. Implementations must tolerate concurrent
// calls; the controller fires them from its own goroutines.
type Beeper interface {
	PlayStart()
	PlayEnd()
	PlayError()
}

type Options struct {
	Transcriber transcriber.Transcriber
	Capture     audio.CaptureDevice
	Injector    inject.Injector
	History     *history.Store

	Beeper   Beeper             // optional
	Copy     func(string) error // optional, defaults to inject.Copy
	IsToggle func() bool        // optional, reports current hotkey mode

	Format     string
	Language   string
	MinCapture time.Duration // captures shorter than this are discarded
	IdleWarn   time.Duration
	IdleStop   time.Duration
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdCancel
	cmdRetype
	cmdCopyLast
)

func (k cmdKind) String() string {
	switch k {
	case cmdStart:
		return "start"
	case cmdStop:
		return "stop"
	case cmdCancel:
		return "cancel"
	case cmdRetype:
		return "retype"
	default:
		return "copy-last"
	}
}

type command struct {
	kind cmdKind
	text string
}

// recording is the live-session bookkeeping attached to one Start command.
type recording struct {
	sess        transcriber.Session
	gen         uint64
	vad         *audio.SpeechDetector
	frames      uint64 // atomic
	injected    string // running text already typed; read after updatesDone
	updatesDone chan struct{}
	monitorStop chan struct{}
	releaseOnce sync.Once
	startedAt   time.Time
}

// finalizeOutcome travels from the finalize goroutine back into the actor.
type finalizeOutcome struct {
	gen       uint64
	discarded bool
	result    transcriber.SessionResult
	err       error
	injected  string
	mode      string
}

// injectOutcome travels from the tail-injection goroutine back into the
// actor. The history entry is already recorded by the time it is posted.
type injectOutcome struct {
	gen    uint64
	err    error
	mode   string
	audioS float64
}

type Controller struct {
	opts Options
	hub  hub

	cmds      chan command
	fins      chan finalizeOutcome
	injs      chan injectOutcome
	quit      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// actor-owned
	state State
	gen   uint64
	rec   *recording

	// visible snapshot for other goroutines
	stateAtomic atomic.Int32
}

func New(opts Options) (*Controller, error) {
	if opts.Transcriber == nil {
		return nil, Errorf(ConfigError, "no transcription provider configured")
	}
	if opts.Capture == nil {
		return nil, Errorf(ConfigError, "no capture device")
	}
	if opts.Injector == nil {
		return nil, Errorf(ConfigError, "no injector")
	}
	if opts.Copy == nil {
		opts.Copy = inject.Copy
	}
	if opts.IsToggle == nil {
		opts.IsToggle = func() bool { return false }
	}
	if opts.MinCapture <= 0 {
		opts.MinCapture = 100 * time.Millisecond
	}
	if opts.IdleWarn <= 0 {
		opts.IdleWarn = 8 * time.Second
	}
	if opts.IdleStop <= 0 {
		opts.IdleStop = 30 * time.Second
	}

	c := &Controller{
		opts: opts,
		cmds: make(chan command, 16),
		fins: make(chan finalizeOutcome, 4),
		injs: make(chan injectOutcome, 4),
		quit: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c, nil
}

// Subscribe attaches an observer. Events fired before the call are lost.
func (c *Controller) Subscribe(o Observer) { c.hub.subscribe(o) }

// State returns the most recently entered state.
func (c *Controller) State() State { return State(c.stateAtomic.Load()) }

func (c *Controller) Start()    { c.enqueue(command{kind: cmdStart}) }
func (c *Controller) Stop()     { c.enqueue(command{kind: cmdStop}) }
func (c *Controller) Cancel()   { c.enqueue(command{kind: cmdCancel}) }
func (c *Controller) CopyLast() { c.enqueue(command{kind: cmdCopyLast}) }

// Retype sends text straight to the injector, bypassing capture and
// transcription. An empty string means the most recent history entry.
func (c *Controller) Retype(text string) { c.enqueue(command{kind: cmdRetype, text: text}) }

// Close stops the command loop. A live recording is cancelled first.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	c.wg.Wait()
}

func (c *Controller) enqueue(cmd command) {
	select {
	case c.cmds <- cmd:
	case <-c.quit:
	default:
		log.Warnf("command queue full, dropping %s", cmd.kind)
	}
}

func (c *Controller) run() {
	defer c.wg.Done()
	for {
		select {
		case cmd := <-c.cmds:
			c.handle(cmd)
		case fin := <-c.fins:
			c.finalized(fin)
		case out := <-c.injs:
			c.injectionDone(out)
		case <-c.quit:
			if c.rec != nil {
				c.cancelActive()
			}
			return
		}
	}
}

func (c *Controller) handle(cmd command) {
	switch cmd.kind {
	case cmdStart:
		c.handleStart()
	case cmdStop:
		c.handleStop("stop")
	case cmdCancel:
		if c.rec != nil || c.state != Idle {
			c.cancelActive()
		}
	case cmdRetype:
		c.handleRetype(cmd.text)
	case cmdCopyLast:
		c.handleCopyLast()
	}
}

func (c *Controller) setState(s State, cause string) {
	if s == c.state {
		return
	}
	log.Transition(c.state.String(), s.String(), cause)
	c.state = s
	c.stateAtomic.Store(int32(s))
	c.hub.statusChanged(s)
}

// fail surfaces err and resets to Idle.
func (c *Controller) fail(kind ErrorKind, err error) {
	werr := NewError(kind, err)
	log.Errorf("%v", werr)
	c.setState(Failed, kind.String())
	c.hub.errorRaised(werr)
	if c.opts.Beeper != nil {
		go c.opts.Beeper.PlayError()
	}
	c.setState(Idle, "recovered")
}

func (c *Controller) handleStart() {
	if c.state != Idle {
		log.Info("start ignored, session already active")
		return
	}
	c.setState(Connecting, "start")

	sess, err := c.opts.Transcriber.NewSession(context.Background(), transcriber.SessionConfig{
		Stream:   c.opts.Transcriber.Streaming(),
		Format:   c.opts.Format,
		Language: c.opts.Language,
	})
	if err != nil {
		c.fail(ServiceError, err)
		return
	}

	rec := &recording{
		sess:        sess,
		gen:         c.gen,
		vad:         audio.NewSpeechDetector(),
		updatesDone: make(chan struct{}),
		monitorStop: make(chan struct{}),
		startedAt:   time.Now(),
	}

	c.opts.Capture.SetCallback(func(data []byte, frameCount uint32) {
		atomic.AddUint64(&rec.frames, uint64(frameCount))
		if len(data) > 0 {
			pcm := make([]byte, len(data))
			copy(pcm, data)
			sess.Feed(pcm)
			rec.vad.Process(data)
			c.hub.audioLevel(rec.vad.Level())
		}
	})

	if err := c.opts.Capture.Start(); err != nil {
		c.opts.Capture.ClearCallback()
		sess.Cancel()
		c.fail(DeviceError, err)
		return
	}

	c.rec = rec
	go c.forwardUpdates(rec)
	go c.runIdleMonitor(rec)
	c.setState(Recording, "capture started")
	if c.opts.Beeper != nil {
		go c.opts.Beeper.PlayStart()
	}
}

// forwardUpdates types each final increment as it commits. Update.Text is
// the full running transcript; the increment is whatever extends the
// previously injected prefix.
func (c *Controller) forwardUpdates(rec *recording) {
	defer close(rec.updatesDone)
	for upd := range rec.sess.Updates() {
		if !upd.Final {
			// Interims carry only the speculative fragment; show it
			// appended to the committed text so observers never see the
			// transcript shrink to a lone fragment.
			interim := upd.Text
			if rec.injected != "" {
				interim = rec.injected + " " + interim
			}
			c.hub.transcript(interim, false)
			continue
		}
		var delta string
		if len(upd.Text) > len(rec.injected) {
			delta = upd.Text[len(rec.injected):]
		}
		rec.injected = upd.Text
		if delta != "" {
			if err := c.opts.Injector.Type(delta); err != nil {
				c.hub.errorRaised(NewError(InjectionError, err))
				log.Errorf("typing increment: %v", err)
			}
		}
		c.hub.transcript(upd.Text, true)
	}
}

func (c *Controller) runIdleMonitor(rec *recording) {
	mon := newIdleMonitor(c.opts.IdleWarn, c.opts.IdleStop, c.opts.IsToggle)
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rec.monitorStop:
			return
		case <-ticker.C:
			switch mon.Tick(rec.vad.HasSpeechTick()) {
			case idleWarn, idleRepeat:
				log.Info("no voice detected")
				c.hub.silenceWarning(true)
				if c.opts.Beeper != nil {
					go c.opts.Beeper.PlayError()
				}
			case idleWarnClear:
				c.hub.silenceWarning(false)
			case idleAutoClose:
				log.Info("silence auto-close")
				c.hub.silenceWarning(false)
				c.enqueue(command{kind: cmdStop})
				return
			}
		}
	}
}

// release stops the microphone and the idle monitor, exactly once.
func (c *Controller) release(rec *recording) {
	rec.releaseOnce.Do(func() {
		c.opts.Capture.Stop()
		c.opts.Capture.ClearCallback()
		close(rec.monitorStop)
	})
}

func (c *Controller) handleStop(cause string) {
	if c.state != Recording || c.rec == nil {
		return
	}
	rec := c.rec
	c.release(rec)
	c.setState(Processing, cause)
	if c.opts.Beeper != nil {
		go c.opts.Beeper.PlayEnd()
	}

	mode := "ptt"
	if c.opts.IsToggle() {
		mode = "toggle"
	}
	minFrames := uint64(c.opts.MinCapture.Seconds() * float64(audio.SampleRate))
	go c.finalize(rec, minFrames, mode)
}

// finalize runs off the actor loop; its outcome is posted back and dropped
// there if the session was cancelled in the meantime.
func (c *Controller) finalize(rec *recording, minFrames uint64, mode string) {
	frames := atomic.LoadUint64(&rec.frames)
	if frames < minFrames {
		rec.sess.Cancel()
		<-rec.updatesDone
		c.fins <- finalizeOutcome{gen: rec.gen, discarded: true, mode: mode}
		return
	}

	result, err := rec.sess.Close()
	<-rec.updatesDone
	c.fins <- finalizeOutcome{
		gen:      rec.gen,
		result:   result,
		err:      err,
		injected: rec.injected,
		mode:     mode,
	}
}

func (c *Controller) finalized(fin finalizeOutcome) {
	if fin.gen != c.gen {
		log.Info("dropping result from cancelled session")
		return
	}
	c.rec = nil

	if fin.discarded {
		log.Info("capture below minimum duration, discarded")
		c.setState(Idle, "too short")
		return
	}
	if fin.err != nil {
		c.fail(ServiceError, fin.err)
		return
	}
	if fin.result.NoSpeech {
		log.Info("no speech detected")
		c.hub.transcript("", true)
		c.setState(Idle, "no speech")
		return
	}

	// The transcript goes to history before injection is attempted: a
	// failed injection must never lose the text.
	if c.opts.History != nil {
		entry, err := c.opts.History.Add(fin.result.Text, c.opts.Transcriber.Name(), fin.mode, fin.result.AudioS)
		if err != nil {
			log.Warnf("recording history: %v", err)
		} else {
			c.hub.historyAppended(entry)
		}
	}
	log.TranscriptionText(fin.result.Text)

	var tail string
	if len(fin.result.Text) > len(fin.injected) {
		tail = fin.result.Text[len(fin.injected):]
	}
	if tail == "" {
		log.SessionDone(c.opts.Transcriber.Name(), fin.mode, fin.result.AudioS, true)
		c.setState(Idle, "injected")
		return
	}

	// Injection can take a while at the OS level; run it off-loop so the
	// command queue stays live while the keystrokes go out.
	c.setState(Injecting, "transcript ready")
	out := injectOutcome{gen: fin.gen, mode: fin.mode, audioS: fin.result.AudioS}
	go func() {
		out.err = c.opts.Injector.Type(tail)
		c.injs <- out
	}()
}

func (c *Controller) injectionDone(out injectOutcome) {
	if out.gen != c.gen {
		log.Info("dropping injection outcome from cancelled session")
		return
	}
	if out.err != nil {
		log.SessionDone(c.opts.Transcriber.Name(), out.mode, out.audioS, false)
		c.fail(InjectionError, out.err)
		return
	}
	log.SessionDone(c.opts.Transcriber.Name(), out.mode, out.audioS, true)
	c.setState(Idle, "injected")
}

// cancelActive abandons the live session. A finalize already in flight is
// orphaned by the generation bump; its resources are still released when the
// provider call settles.
func (c *Controller) cancelActive() {
	c.gen++
	rec := c.rec
	c.rec = nil
	if rec != nil {
		c.release(rec)
		go func() {
			rec.sess.Cancel()
			<-rec.updatesDone
		}()
	}
	c.setState(Idle, "cancel")
}

func (c *Controller) handleRetype(text string) {
	if text == "" {
		if c.opts.History == nil {
			return
		}
		e, ok := c.opts.History.Latest()
		if !ok {
			c.hub.errorRaised(Errorf(InjectionError, "history is empty"))
			return
		}
		text = e.Text
	}
	// No state transition: retype goes straight to the injector, whose guard
	// orders it against any in-flight increment.
	go func() {
		if err := c.opts.Injector.Type(text); err != nil {
			c.hub.errorRaised(NewError(InjectionError, err))
			log.Errorf("retype: %v", err)
		}
	}()
}

func (c *Controller) handleCopyLast() {
	if c.opts.History == nil {
		return
	}
	e, ok := c.opts.History.Latest()
	if !ok {
		return
	}
	if err := c.opts.Copy(e.Text); err != nil {
		c.hub.errorRaised(Errorf(InjectionError, "copying transcript: %w", err))
	}
}
