//go:build onnx

package vad

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// resolveORTLibPath locates the ONNX Runtime shared library. Search order:
//  1. BOWW_ORT_LIB_PATH environment variable (explicit override)
//  2. lib/<goos>-<goarch>/<filename> relative to the executable
//  3. ../lib/<goos>-<goarch>/<filename> relative to the executable
//  4-5. the same two, relative to the current directory, but only when
//     BOWW_DEV_MODE=1 — CWD lookup is off by default so a malicious working
//     directory can't substitute a hijacked shared library.
func resolveORTLibPath() (string, error) {
	if envPath := os.Getenv("BOWW_ORT_LIB_PATH"); envPath != "" {
		info, err := os.Stat(envPath)
		if err != nil {
			return "", fmt.Errorf("BOWW_ORT_LIB_PATH=%q does not exist", envPath)
		}
		if info.IsDir() {
			return "", fmt.Errorf("BOWW_ORT_LIB_PATH=%q is a directory, expected a file", envPath)
		}
		return envPath, nil
	}

	filename := ortLibFilename()
	libRel := filepath.Join("lib", runtime.GOOS+"-"+runtime.GOARCH, filename)
	libRelParent := filepath.Join("..", "lib", runtime.GOOS+"-"+runtime.GOARCH, filename)

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		for _, rel := range []string{libRel, libRelParent} {
			path := filepath.Join(exeDir, rel)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	if os.Getenv("BOWW_DEV_MODE") == "1" {
		if dir, err := os.Getwd(); err == nil {
			for _, rel := range []string{libRel, libRelParent} {
				path := filepath.Join(dir, rel)
				if _, err := os.Stat(path); err == nil {
					return path, nil
				}
			}
		}
	}

	return "", fmt.Errorf("onnxruntime shared library not found; searched lib/<os>-<arch>/%s relative to the executable (set BOWW_ORT_LIB_PATH to override, or BOWW_DEV_MODE=1 for a CWD-relative search)", filename)
}

func ortLibFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
