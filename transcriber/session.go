package transcriber

type SessionConfig struct {
	Stream   bool
	Format   string // "flac"|"wav" (batch only; streaming always sends PCM16)
	Language string
}

// Update is one live transcript event. For Final updates Text is the full
// running transcript, finals joined with single spaces; consumers derive the
// new increment by slicing off the previously seen prefix. Interim updates
// carry speculative text for display only and must never be injected.
type Update struct {
	Text  string
	Final bool
}

type SessionResult struct {
	Text      string
	HasText   bool
	NoSpeech  bool
	AudioS    float64 // seconds of audio submitted
	RateLimit string  // "remaining/limit" or empty
}

// Session is one capture-to-transcript exchange. Feed accepts raw PCM16
// chunks in arrival order; Close flushes, waits for the provider and returns
// the final result. Cancel tears the session down without requesting a
// transcript: buffered audio is dropped and, for batch sessions, the
// provider is never contacted. Both are idempotent and Feed after either is
// a silent no-op.
type Session interface {
	Feed(pcm []byte)
	Updates() <-chan Update
	Close() (SessionResult, error)
	Cancel()
}
