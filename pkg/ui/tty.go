package ui

import (
	"os"
	"runtime"
)

// OpenTTY opens the controlling terminal, used as program input when
// stdin is redirected.
func OpenTTY() (*os.File, error) {
	name := "/dev/tty"
	if runtime.GOOS == "windows" {
		name = "CONIN$"
	}
	return os.OpenFile(name, os.O_RDWR, 0)
}
