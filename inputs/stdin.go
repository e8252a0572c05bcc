package inputs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/term"
)

// StdinFileName is the name the standard input is saved as.
const StdinFileName = "stdin.tap"

// ErrInteractiveStdin is returned when the standard input is a terminal,
// reading it would block waiting for the user.
var ErrInteractiveStdin = errors.New("standard input is a terminal, pipe a TAP stream into the step or list files instead")

// SaveStdin copies the standard input into dir, so that it can be processed
// like any other test result file.
func SaveStdin(stdin *os.File, dir string) (string, error) {
	if term.IsTerminal(int(stdin.Fd())) {
		return "", ErrInteractiveStdin
	}
	return saveStream(stdin, dir)
}

func saveStream(r io.Reader, dir string) (string, error) {
	pth := filepath.Join(dir, StdinFileName)
	f, err := os.Create(pth)
	if err != nil {
		return "", fmt.Errorf("failed to create file for standard input: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("failed to read standard input: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return pth, nil
}

// ReplaceStdin swaps StdinPath in paths for the saved file.
func ReplaceStdin(paths []string, savedPath string) []string {
	replaced := make([]string, len(paths))
	for i, pth := range paths {
		if pth == StdinPath {
			pth = savedPath
		}
		replaced[i] = pth
	}
	return replaced
}

// HasStdin reports whether paths list the standard input.
func HasStdin(paths []string) bool {
	for _, pth := range paths {
		if pth == StdinPath {
			return true
		}
	}
	return false
}
