//go:build linux

package audio

import (
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
	"github.com/jfreymuth/pulse/proto"
)

// Capture gain applied in software. Desktop mics routinely sit well below
// full scale and quiet input tanks transcription accuracy, so samples are
// boosted and clamped before they reach the callback.
const captureGain = 8

type pulseContext struct {
	client *pulse.Client
}

// NewContext connects to the PulseAudio (or PipeWire-pulse) daemon.
func NewContext() (Context, error) {
	client, err := pulse.NewClient()
	if err != nil {
		return nil, fmt.Errorf("pulse: %w", err)
	}
	return &pulseContext{client: client}, nil
}

func (p *pulseContext) Devices() ([]DeviceInfo, error) {
	sources, err := p.client.ListSources()
	if err != nil {
		return nil, fmt.Errorf("pulse list sources: %w", err)
	}
	infos := make([]DeviceInfo, 0, len(sources))
	for _, src := range sources {
		infos = append(infos, DeviceInfo{ID: src.ID(), Name: src.Name()})
	}
	return infos, nil
}

func (p *pulseContext) NewCapture(device *DeviceInfo, config CaptureConfig) (CaptureDevice, error) {
	return &pulseCapture{client: p.client, device: device, config: config}, nil
}

func (p *pulseContext) Close() {
	p.client.Close()
}

type pulseCapture struct {
	client   *pulse.Client
	device   *DeviceInfo
	config   CaptureConfig
	callback atomic.Pointer[DataCallback]

	mu     sync.Mutex
	stream *pulse.RecordStream
	stop   chan struct{}
	done   chan struct{}
}

// boost amplifies one sample and clamps it to the int16 range.
func boost(s int16) int16 {
	amplified := int32(s) * captureGain
	if amplified > 32767 {
		return 32767
	}
	if amplified < -32768 {
		return -32768
	}
	return int16(amplified)
}

func (c *pulseCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	writer := pulse.Int16Writer(func(samples []int16) (int, error) {
		if len(samples) == 0 {
			return 0, nil
		}
		cb := c.callback.Load()
		if cb == nil {
			// Keep consuming so the stream never stalls while nobody listens
			return len(samples), nil
		}
		data := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(data[i*2:], uint16(boost(s)))
		}
		(*cb)(data, uint32(len(samples)))
		return len(samples), nil
	})

	opts := []pulse.RecordOption{
		pulse.RecordMono,
		pulse.RecordSampleRate(int(c.config.SampleRate)),
		pulse.RecordLatency(0.05),
		pulse.RecordRawOption(func(r *proto.CreateRecordStream) {
			// Ask the server for extra input volume on top of captureGain
			vol := uint32(proto.VolumeNorm) * 3
			r.ChannelVolumes = proto.ChannelVolumes{vol}
		}),
	}
	if c.device != nil {
		if source, err := c.client.SourceByID(c.device.ID); err == nil && source != nil {
			opts = append(opts, pulse.RecordSource(source))
		}
	}

	stream, err := c.client.NewRecord(writer, opts...)
	if err != nil {
		return fmt.Errorf("pulse record: %w", err)
	}

	c.stream = stream
	c.stop = make(chan struct{})
	c.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		stream.Start()
		<-stop
		stream.Stop()
		stream.Close()
	}(c.stop, c.done)

	return nil
}

func (c *pulseCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop == nil {
		return
	}
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	<-c.done
}

func (c *pulseCapture) Close() {
	c.Stop()
}

func (c *pulseCapture) SetCallback(cb DataCallback) {
	c.callback.Store(&cb)
}

func (c *pulseCapture) ClearCallback() {
	c.callback.Store(nil)
}

func (c *pulseCapture) DeviceName() string {
	if c.device != nil {
		return c.device.Name
	}
	return "system default"
}
