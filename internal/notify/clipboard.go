package notify

import (
	"errors"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
)

// SystemClipboard copies via the native clipboard, falling back to the
// common X11 helpers when the primary mechanism is unavailable.
type SystemClipboard struct{}

func (SystemClipboard) Copy(text string) error {
	if err := clipboard.WriteAll(text); err == nil {
		return nil
	}

	for _, argv := range [][]string{
		{"xclip", "-selection", "clipboard"},
		{"xsel", "--clipboard", "--input"},
	} {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin = strings.NewReader(text)
		if err := cmd.Run(); err == nil {
			return nil
		}
	}
	return errors.New("no clipboard mechanism available")
}
