package wav

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriterPatchesSizesOnClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.wav")

	w, err := Create(path, 16000, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	samples := make([]int16, 1024)
	for i := range samples {
		samples[i] = int16(i)
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("WriteSamples: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	fileLen := uint32(len(data))
	gotRiff := binary.LittleEndian.Uint32(data[4:8])
	gotData := binary.LittleEndian.Uint32(data[40:44])

	if wantRiff := fileLen - 8; gotRiff != wantRiff {
		t.Errorf("riff size = %d, want %d", gotRiff, wantRiff)
	}
	if wantData := fileLen - headerSize; gotData != wantData {
		t.Errorf("data size = %d, want %d", gotData, wantData)
	}
	if wantData := uint32(len(samples) * 2); gotData != wantData {
		t.Errorf("data size = %d, want sample byte count %d", gotData, wantData)
	}

	body := data[headerSize:]
	for i, s := range samples {
		got := int16(binary.LittleEndian.Uint16(body[i*2:]))
		if got != s {
			t.Fatalf("sample %d corrupted: got %d, want %d", i, got, s)
		}
	}
}

func TestWriterCloseIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	w, err := Create(filepath.Join(dir, "out.wav"), 16000, 1)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got: %v", err)
	}
}

func TestGenerateFilename(t *testing.T) {
	at := time.Date(2026, 7, 29, 13, 4, 5, 0, time.UTC)
	got := GenerateFilename("client-1", "kitchen", at)
	want := filepath.Join("wav", "client-1_kitchen_20260729-130405.wav")
	if got != want {
		t.Errorf("GenerateFilename = %q, want %q", got, want)
	}
}
