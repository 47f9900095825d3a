//go:build darwin || windows

package hotkey

import (
	"fmt"

	"golang.design/x/hotkey"
)

type xHotkey struct {
	combo   Combo
	hk      *hotkey.Hotkey
	keydown chan struct{}
	keyup   chan struct{}
	stop    chan struct{}
}

func New(combo Combo) Hotkey {
	return &xHotkey{
		combo:   combo,
		hk:      hotkey.New(modifiers(combo), xKey(combo.Key)),
		keydown: make(chan struct{}, 1),
		keyup:   make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

var letterKeys = [26]hotkey.Key{
	hotkey.KeyA, hotkey.KeyB, hotkey.KeyC, hotkey.KeyD, hotkey.KeyE, hotkey.KeyF,
	hotkey.KeyG, hotkey.KeyH, hotkey.KeyI, hotkey.KeyJ, hotkey.KeyK, hotkey.KeyL,
	hotkey.KeyM, hotkey.KeyN, hotkey.KeyO, hotkey.KeyP, hotkey.KeyQ, hotkey.KeyR,
	hotkey.KeyS, hotkey.KeyT, hotkey.KeyU, hotkey.KeyV, hotkey.KeyW, hotkey.KeyX,
	hotkey.KeyY, hotkey.KeyZ,
}

var functionKeys = [12]hotkey.Key{
	hotkey.KeyF1, hotkey.KeyF2, hotkey.KeyF3, hotkey.KeyF4, hotkey.KeyF5, hotkey.KeyF6,
	hotkey.KeyF7, hotkey.KeyF8, hotkey.KeyF9, hotkey.KeyF10, hotkey.KeyF11, hotkey.KeyF12,
}

func xKey(key string) hotkey.Key {
	if len(key) == 1 && key[0] >= 'a' && key[0] <= 'z' {
		return letterKeys[key[0]-'a']
	}
	if n := functionKey(key); n > 0 {
		return functionKeys[n-1]
	}
	return hotkey.KeySpace
}

func (h *xHotkey) Register() error {
	if err := h.hk.Register(); err != nil {
		return err
	}
	go func() {
		for {
			select {
			case <-h.hk.Keydown():
				forward(h.keydown)
			case <-h.stop:
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case <-h.hk.Keyup():
				forward(h.keyup)
			case <-h.stop:
				return
			}
		}
	}()
	return nil
}

func forward(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (h *xHotkey) Unregister() {
	select {
	case <-h.stop:
		return
	default:
		close(h.stop)
	}
	h.hk.Unregister()
}

func (h *xHotkey) Keydown() <-chan struct{} {
	return h.keydown
}

func (h *xHotkey) Keyup() <-chan struct{} {
	return h.keyup
}

func Diagnose(combo Combo) (string, error) {
	return fmt.Sprintf("hotkey support available (%s)", combo), nil
}
