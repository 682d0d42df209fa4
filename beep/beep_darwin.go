//go:build darwin

package beep

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// One long-lived playback device fed from an atomic cursor: the data
// callback runs on the audio thread, so it only ever loads the current
// cue and position, never locks.
type cuePlayer struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	cue atomic.Pointer[[]byte]
	pos atomic.Uint32
	mu  sync.Mutex
}

var (
	player    cuePlayer
	startCue  []byte
	endCue    []byte
	errorCue  []byte
	soundOnce sync.Once
)

func initSound() {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return
	}
	player.ctx = ctx

	startCue = monoTick(startFreq, 0.03, startVolume, startDecay)
	endCue = monoTick(endFreq, 0.05, endVolume, endDecay)
	errorCue = monoDoubleBeep(errorFreq, 0.08, 0.05, errorVolume, errorDecay)

	if err := player.openDevice(); err != nil {
		ctx.Uninit()
		player.ctx = nil
	}
}

func (p *cuePlayer) openDevice() error {
	config := malgo.DefaultDeviceConfig(malgo.Playback)
	config.Playback.Format = malgo.FormatS16
	config.Playback.Channels = 1
	config.SampleRate = sampleRate

	dev, err := malgo.InitDevice(p.ctx.Context, config, malgo.DeviceCallbacks{Data: p.feed})
	if err != nil {
		return err
	}
	p.device = dev
	return nil
}

// feed copies the next slice of the active cue into the output buffer,
// zero-filling once the cue runs out.
func (p *cuePlayer) feed(out, _ []byte, frameCount uint32) {
	cue := p.cue.Load()
	if cue == nil || len(*cue) == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}

	pos := p.pos.Load()
	remaining := uint32(len(*cue)) - pos
	if remaining == 0 {
		p.cue.Store(nil)
		for i := range out {
			out[i] = 0
		}
		return
	}

	n := frameCount * 2
	if n > remaining {
		n = remaining
	}
	copy(out[:n], (*cue)[pos:pos+n])
	p.pos.Store(pos + n)
	for i := n; i < frameCount*2; i++ {
		out[i] = 0
	}
}

func (p *cuePlayer) play(cue []byte) {
	if p.ctx == nil || len(cue) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device == nil {
		return
	}

	p.device.Stop()
	p.pos.Store(0)
	p.cue.Store(&cue)

	if err := p.device.Start(); err != nil {
		// The device handle goes stale across sleep/wake; rebuild it once
		p.device.Uninit()
		if err := p.openDevice(); err != nil {
			p.cue.Store(nil)
			return
		}
		if err := p.device.Start(); err != nil {
			p.cue.Store(nil)
		}
	}
}

// monoTick renders one decaying sine burst as little-endian PCM16 mono.
func monoTick(freq, duration, volume, decay float64) []byte {
	n := int(sampleRate * duration)
	buf := make([]byte, n*2)
	for i := 0; i < n; i++ {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		s := int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(s >> 8)
	}
	return buf
}

func monoDoubleBeep(freq, beepDur, gapDur, volume, decay float64) []byte {
	tone := monoTick(freq, beepDur, volume, decay)
	gap := make([]byte, int(sampleRate*gapDur)*2)
	out := make([]byte, 0, len(tone)*2+len(gap))
	out = append(out, tone...)
	out = append(out, gap...)
	out = append(out, tone...)
	return out
}

func Init() {
	soundOnce.Do(initSound)
}

func PlayStart() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	player.play(startCue)
}

func PlayEnd() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	player.play(endCue)
}

func PlayError() {
	if disabled {
		return
	}
	soundOnce.Do(initSound)
	player.play(errorCue)
}
