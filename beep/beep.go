// Package beep plays the short cues that bracket a dictation: a high tick
// when capture starts, a lower one when it ends, and a double beep for
// errors and silence warnings.
package beep

var disabled bool

// Disable silences all cues for this process (headless runs, tests).
func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Start cue: high pitch, short
	startFreq   = 1200
	startVolume = 0.5
	startDecay  = 60

	// End cue: medium pitch, slightly longer
	endFreq   = 900
	endVolume = 0.5
	endDecay  = 40

	// Error cue: low pitch double-beep
	errorFreq   = 350
	errorVolume = 0.6
	errorDecay  = 30
)

// Player adapts the package-level cue functions to an instance the
// controller can hold.
type Player struct{}

func (Player) PlayStart() { PlayStart() }
func (Player) PlayEnd()   { PlayEnd() }
func (Player) PlayError() { PlayError() }
