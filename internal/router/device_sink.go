package router

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// targetLatencyMs mirrors the 50ms period the original ALSA path configures
// via snd_pcm_set_params.
const targetLatencyMs = 50

// deviceSink streams PCM to a playback device via malgo. Samples are queued
// under a mutex and drained by the device's data callback, the same
// queue-and-drain shape cmd/agent's duplex playback loop uses for its
// bot-speech buffer.
type deviceSink struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu       sync.Mutex
	queue    []int16
	underrun bool
}

func openMalgoDevice(cfg Config) (sink, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("router: malgo init context: %w", err)
	}

	ds := &deviceSink{ctx: mctx}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(cfg.Channels)
	deviceConfig.SampleRate = uint32(cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	deviceConfig.PeriodSizeInMilliseconds = targetLatencyMs

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: ds.onSamples,
	})
	if err != nil {
		mctx.Uninit()
		return nil, fmt.Errorf("router: malgo init device %q: %w", cfg.Target, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		return nil, fmt.Errorf("router: malgo device start: %w", err)
	}

	ds.device = device
	return ds, nil
}

// onSamples is the malgo data callback: it drains queued PCM into pOutput,
// padding with silence on underrun rather than blocking the audio thread.
func (d *deviceSink) onSamples(pOutput, _ []byte, _ uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	needed := len(pOutput) / 2
	if len(d.queue) < needed {
		// Transient underrun: recover once by padding, then continue —
		// the PCM source will catch the queue back up on its next write.
		d.underrun = true
	}

	n := needed
	if n > len(d.queue) {
		n = len(d.queue)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(pOutput[i*2:], uint16(d.queue[i]))
	}
	for i := n * 2; i < len(pOutput); i++ {
		pOutput[i] = 0
	}
	d.queue = d.queue[n:]
}

func (d *deviceSink) write(chunk []int16) {
	d.mu.Lock()
	d.queue = append(d.queue, chunk...)
	d.mu.Unlock()
}

func (d *deviceSink) close() error {
	d.device.Uninit()
	d.ctx.Uninit()
	return nil
}
