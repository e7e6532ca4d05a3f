package router

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeSink struct {
	writes [][]int16
	closed bool
}

func (f *fakeSink) write(chunk []int16) { f.writes = append(f.writes, chunk) }
func (f *fakeSink) close() error        { f.closed = true; return nil }

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chdir(old) })
}

func TestOpenWriteCloseFileSinkIdempotence(t *testing.T) {
	chdirTemp(t)
	r := New(Config{GroupName: "kitchen", SampleRate: 16000, Channels: 1, Kind: KindFile}, nil)

	if !r.Open("client-1") {
		t.Fatal("expected first Open to succeed")
	}
	if r.Open("client-1") {
		t.Fatal("expected second Open while busy to fail")
	}
	r.Write([]int16{1, 2, 3})
	r.Close()
	if r.IsBusy() {
		t.Fatal("expected router to be free after Close")
	}
	// Closing again, and writing while not busy, must not panic.
	r.Close()
	r.Write([]int16{4, 5, 6})

	if !r.Open("client-2") {
		t.Fatal("expected Open to succeed again after Close")
	}
	r.Close()

	matches, _ := filepath.Glob("wav/*.wav")
	if len(matches) != 2 {
		t.Fatalf("expected 2 wav files, got %d: %v", len(matches), matches)
	}
}

func TestOpenFallsBackToFileWhenDeviceFails(t *testing.T) {
	chdirTemp(t)
	r := New(Config{
		GroupName:            "kitchen",
		SampleRate:           16000,
		Channels:             1,
		Kind:                 KindDevice,
		FallbackToFileOnBusy: true,
	}, nil)
	r.openDevice = func(Config) (sink, error) {
		return nil, errors.New("no device available")
	}

	if !r.Open("client-1") {
		t.Fatal("expected fallback to file to succeed")
	}
	r.Close()

	matches, _ := filepath.Glob("wav/*.wav")
	if len(matches) != 1 {
		t.Fatalf("expected fallback to produce 1 wav file, got %d", len(matches))
	}
}

func TestOpenFailsWithoutFallback(t *testing.T) {
	chdirTemp(t)
	r := New(Config{
		GroupName:            "kitchen",
		SampleRate:           16000,
		Channels:             1,
		Kind:                 KindDevice,
		FallbackToFileOnBusy: false,
	}, nil)
	r.openDevice = func(Config) (sink, error) {
		return nil, errors.New("no device available")
	}

	if r.Open("client-1") {
		t.Fatal("expected Open to fail with no fallback configured")
	}
	if r.IsBusy() {
		t.Fatal("expected router to remain free after a failed Open")
	}
}

func TestOpenDoesNotMutateConfigOnFallback(t *testing.T) {
	chdirTemp(t)
	r := New(Config{
		GroupName:            "kitchen",
		SampleRate:           16000,
		Channels:             1,
		Kind:                 KindDevice,
		FallbackToFileOnBusy: true,
	}, nil)
	r.openDevice = func(Config) (sink, error) {
		return nil, errors.New("no device available")
	}

	r.Open("client-1")
	r.Close()

	if r.cfg.Kind != KindDevice {
		t.Fatalf("expected router config kind to remain KindDevice after fallback, got %v", r.cfg.Kind)
	}
}

func TestWriteRoutesToActiveSink(t *testing.T) {
	chdirTemp(t)
	r := New(Config{GroupName: "kitchen", SampleRate: 16000, Channels: 1, Kind: KindDevice}, nil)
	fs := &fakeSink{}
	r.openDevice = func(Config) (sink, error) { return fs, nil }

	r.Open("client-1")
	r.Write([]int16{7, 8, 9})
	r.Close()

	if len(fs.writes) != 1 || len(fs.writes[0]) != 3 {
		t.Fatalf("expected one write of 3 samples, got %#v", fs.writes)
	}
	if !fs.closed {
		t.Fatal("expected sink to be closed")
	}
}
