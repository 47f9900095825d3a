//go:build !windows

package doctor

import "os/exec"

// resetTerminal undoes raw mode left behind by an evdev grab or the picker.
func resetTerminal() {
	exec.Command("stty", "sane").Run()
}
