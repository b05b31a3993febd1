// Package clipboard copies the transcript to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	cb "github.com/atotto/clipboard"

	"parley/transcript"
)

var ErrUnsupported = errors.New("clipboard: no clipboard utility found (install xclip, xsel or wl-clipboard)")

func Available() bool { return !cb.Unsupported }

func Copy(text string) error {
	if !Available() {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}

// CopyTranscript writes entries as "Speaker: text" lines and returns how
// many were copied.
func CopyTranscript(entries []transcript.Entry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	if err := Copy(transcript.Text(entries)); err != nil {
		return 0, fmt.Errorf("copy transcript: %w", err)
	}
	return len(entries), nil
}
