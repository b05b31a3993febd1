package doctor

import (
	"os"

	"golang.org/x/term"
)

// saveTerminal snapshots the stdin terminal mode. The returned func puts it
// back, undoing raw mode left behind by a hotkey listener or device picker.
func saveTerminal() func() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}
	}
	state, err := term.GetState(fd)
	if err != nil {
		return func() {}
	}
	return func() { _ = term.Restore(fd, state) }
}
