//go:build !linux

package clipboard

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
)

var (
	kb     keybd_event.KeyBonding
	kbOnce sync.Once
	kbErr  error
	kbMu   sync.Mutex
)

func Init() error {
	kbOnce.Do(func() {
		kb, kbErr = keybd_event.NewKeyBonding()
	})
	return kbErr
}

// shortcut presses the platform command modifier (Cmd on macOS, Ctrl
// elsewhere) together with key.
func shortcut(key int) error {
	if err := Init(); err != nil {
		return err
	}
	kbMu.Lock()
	defer kbMu.Unlock()
	kb.Clear()
	kb.SetKeys(key)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	return kb.Launching()
}

func Paste() error {
	return shortcut(keybd_event.VK_V)
}

func Undo(n int) error {
	for i := 0; i < n; i++ {
		if err := shortcut(keybd_event.VK_Z); err != nil {
			return fmt.Errorf("undo %d/%d: %w", i+1, n, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// Type inserts text through the clipboard; synthetic per-character typing
// is only implemented on linux.
func Type(text string) error {
	return PasteText(text, PasteOptions{})
}

// Verify checks that the keyboard event binding is initialized.
func Verify() (string, error) {
	if err := Init(); err != nil {
		return "", err
	}
	mod := "Ctrl"
	if runtime.GOOS == "darwin" {
		mod = "Cmd"
	}
	return fmt.Sprintf("keyboard event binding OK (%s+V, %s+Z)", mod, mod), nil
}
