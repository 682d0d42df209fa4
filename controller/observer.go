package controller

import (
	"sync"

	"quill/history"
)

// Observer receives controller events. Implementations must not block:
// AudioLevel in particular fires from the capture callback.
type Observer interface {
	StatusChanged(s State)
	TranscriptUpdated(text string, final bool)
	ErrorRaised(err error)
	HistoryAppended(entry history.Entry)
	AudioLevel(level float64)
	SilenceWarning(active bool)
}

// Funcs adapts plain functions to Observer; nil fields are skipped.
type Funcs struct {
	OnStatus     func(State)
	OnTranscript func(string, bool)
	OnError      func(error)
	OnHistory    func(history.Entry)
	OnLevel      func(float64)
	OnSilence    func(bool)
}

func (f Funcs) StatusChanged(s State) {
	if f.OnStatus != nil {
		f.OnStatus(s)
	}
}

func (f Funcs) TranscriptUpdated(text string, final bool) {
	if f.OnTranscript != nil {
		f.OnTranscript(text, final)
	}
}

func (f Funcs) ErrorRaised(err error) {
	if f.OnError != nil {
		f.OnError(err)
	}
}

func (f Funcs) HistoryAppended(e history.Entry) {
	if f.OnHistory != nil {
		f.OnHistory(e)
	}
}

func (f Funcs) AudioLevel(l float64) {
	if f.OnLevel != nil {
		f.OnLevel(l)
	}
}

func (f Funcs) SilenceWarning(active bool) {
	if f.OnSilence != nil {
		f.OnSilence(active)
	}
}

// hub fans controller events out to all subscribed observers.
type hub struct {
	mu        sync.RWMutex
	observers []Observer
}

func (h *hub) subscribe(o Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

func (h *hub) each(fn func(Observer)) {
	h.mu.RLock()
	obs := h.observers
	h.mu.RUnlock()
	for _, o := range obs {
		fn(o)
	}
}

func (h *hub) statusChanged(s State) { h.each(func(o Observer) { o.StatusChanged(s) }) }
func (h *hub) transcript(text string, fin bool) {
	h.each(func(o Observer) { o.TranscriptUpdated(text, fin) })
}
func (h *hub) errorRaised(err error)           { h.each(func(o Observer) { o.ErrorRaised(err) }) }
func (h *hub) historyAppended(e history.Entry) { h.each(func(o Observer) { o.HistoryAppended(e) }) }
func (h *hub) audioLevel(l float64)            { h.each(func(o Observer) { o.AudioLevel(l) }) }
func (h *hub) silenceWarning(on bool)          { h.each(func(o Observer) { o.SilenceWarning(on) }) }
