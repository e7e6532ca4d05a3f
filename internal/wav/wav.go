// Package wav implements a streaming RIFF/WAVE writer for 16-bit PCM audio.
// The header is written as a placeholder on Create and patched with the
// final sizes on Close, since the router streams samples as they drain from
// a locked group's pipeline rather than buffering a whole utterance first.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

const (
	headerSize    = 44
	bitsPerSample = 16
)

// Writer streams PCM samples to a WAVE file, patching the header sizes on
// Close once the final length is known.
type Writer struct {
	f          *os.File
	dataBytes  uint32
	sampleRate int
	channels   int
	closed     bool
}

// Create opens path, truncating any existing file, and writes a placeholder
// 44-byte header. Parent directories are created as needed.
func Create(path string, sampleRate, channels int) (*Writer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("wav: create dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create file: %w", err)
	}

	w := &Writer{f: f, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(0, 0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.Seek(headerSize, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: seek past header: %w", err)
	}
	return w, nil
}

func (w *Writer) writeHeader(overallSize, dataSize uint32) error {
	blockAlign := uint16(w.channels * bitsPerSample / 8)
	byteRate := uint32(w.sampleRate) * uint32(blockAlign)

	var h [headerSize]byte
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], overallSize)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // fmt chunk length
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], byteRate)
	binary.LittleEndian.PutUint16(h[32:34], blockAlign)
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataSize)

	if _, err := w.f.WriteAt(h[:], 0); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

// WriteSamples appends PCM samples to the file. It does not seek: the
// writer's file offset is always at the end of previously-written data.
func (w *Writer) WriteSamples(samples []int16) error {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	n, err := w.f.Write(buf)
	w.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("wav: write samples: %w", err)
	}
	return nil
}

// Close patches the RIFF and data chunk sizes from the final file length and
// closes the underlying file. Safe to call once; a second call is a no-op.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	overallSize := headerSize + w.dataBytes - 8
	if err := w.writeHeader(overallSize, w.dataBytes); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

// GenerateFilename builds the conventional wav/<sourceID>_<group>_<timestamp>.wav
// path, timestamped to second resolution.
func GenerateFilename(sourceID, group string, at time.Time) string {
	ts := at.Format("20060102-150405")
	return filepath.Join("wav", fmt.Sprintf("%s_%s_%s.wav", sourceID, group, ts))
}
