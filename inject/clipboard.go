package inject

import (
	"time"

	cb "github.com/atotto/clipboard"

	"quill/log"
)

// Copy puts text on the system clipboard.
func Copy(text string) error {
	return cb.WriteAll(text)
}

// ReadClipboard returns the current clipboard contents.
func ReadClipboard() (string, error) {
	return cb.ReadAll()
}

// pasteInjector delivers text through the clipboard and a paste chord. The
// previous clipboard contents are put back once the target application has
// had time to consume the paste.
type pasteInjector struct{}

const restoreDelay = 300 * time.Millisecond

func (pasteInjector) Type(text string) error {
	saved, savedErr := cb.ReadAll()
	if err := cb.WriteAll(text); err != nil {
		return err
	}
	if err := pasteChord(); err != nil {
		return err
	}
	if savedErr == nil {
		time.Sleep(restoreDelay)
		if err := cb.WriteAll(saved); err != nil {
			log.Warnf("restoring clipboard: %v", err)
		}
	}
	return nil
}
