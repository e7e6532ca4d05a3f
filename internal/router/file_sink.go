package router

import (
	"time"

	"github.com/boww-net/boww-server/internal/wav"
)

// fileSink writes locked-cycle audio to a streaming WAV file.
type fileSink struct {
	w *wav.Writer
}

func newFileSink(sourceID, group string, sampleRate, channels int, at time.Time) (sink, error) {
	path := wav.GenerateFilename(sourceID, group, at)
	w, err := wav.Create(path, sampleRate, channels)
	if err != nil {
		return nil, err
	}
	return &fileSink{w: w}, nil
}

func (f *fileSink) write(chunk []int16) {
	// Filesystem failures here are rare and unrecoverable mid-stream; the
	// original surfaces nothing to the caller either, so we do the same and
	// let Close's own error path report anything persistent.
	_ = f.w.WriteSamples(chunk)
}

func (f *fileSink) close() error {
	return f.w.Close()
}
