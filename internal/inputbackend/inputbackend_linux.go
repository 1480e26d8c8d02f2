//go:build linux

// Package inputbackend implements the InputBackend abstraction that the
// socket dispatcher (C12) and /volume endpoints delegate to: synthetic
// mouse/keyboard/media-key injection via X11 XTest.
package inputbackend

/*
#cgo pkg-config: x11 xtst
#include <X11/Xlib.h>
#include <X11/keysym.h>
#include <X11/extensions/XTest.h>
#include <stdlib.h>

static Display* backend_display = NULL;

static int backend_init(const char *display_name) {
	backend_display = XOpenDisplay(display_name);
	if (!backend_display) return -1;
	return 0;
}

static void backend_move_rel(int dx, int dy) {
	if (!backend_display) return;
	XWarpPointer(backend_display, None, None, 0, 0, 0, 0, dx, dy);
	XFlush(backend_display);
}

static void backend_button(int button, int press) {
	if (!backend_display) return;
	XTestFakeButtonEvent(backend_display, button, press, 0);
	XFlush(backend_display);
}

static double scroll_accum = 0;

static void backend_scroll(double dy) {
	if (!backend_display) return;
	scroll_accum += dy;
	while (scroll_accum <= -40) {
		XTestFakeButtonEvent(backend_display, 4, True, 0);
		XTestFakeButtonEvent(backend_display, 4, False, 0);
		scroll_accum += 40;
	}
	while (scroll_accum >= 40) {
		XTestFakeButtonEvent(backend_display, 5, True, 0);
		XTestFakeButtonEvent(backend_display, 5, False, 0);
		scroll_accum -= 40;
	}
	XFlush(backend_display);
}

static void backend_key(unsigned int keysym, int press) {
	if (!backend_display) return;
	KeyCode kc = XKeysymToKeycode(backend_display, keysym);
	if (kc == 0) return;
	XTestFakeKeyEvent(backend_display, kc, press, 0);
	XFlush(backend_display);
}

static void backend_destroy() {
	if (backend_display) {
		XCloseDisplay(backend_display);
		backend_display = NULL;
	}
}
*/
import "C"

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"unsafe"
)

// Backend injects synthetic input via X11 XTest.
type Backend struct {
	mu sync.Mutex
}

// New opens the X11 connection used for input injection.
func New(displayName string) (*Backend, error) {
	cDisplay := C.CString(displayName)
	defer C.free(unsafe.Pointer(cDisplay))
	if C.backend_init(cDisplay) != 0 {
		return nil, fmt.Errorf("inputbackend: failed to open display %q", displayName)
	}
	return &Backend{}, nil
}

// Close releases the X11 connection.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	C.backend_destroy()
}

func x11Button(name string) C.int {
	switch strings.ToLower(name) {
	case "middle":
		return 2
	case "right":
		return 3
	default:
		return 1
	}
}

// MouseMove applies a relative pointer motion.
func (b *Backend) MouseMove(dx, dy float64) {
	C.backend_move_rel(C.int(dx), C.int(dy))
}

// MouseClick presses and releases button, twice in quick succession when
// double is set.
func (b *Backend) MouseClick(button string, double bool) {
	btn := x11Button(button)
	C.backend_button(btn, 1)
	C.backend_button(btn, 0)
	if double {
		C.backend_button(btn, 1)
		C.backend_button(btn, 0)
	}
}

// MouseDown presses and holds button.
func (b *Backend) MouseDown(button string) {
	C.backend_button(x11Button(button), 1)
}

// MouseUp releases button.
func (b *Backend) MouseUp(button string) {
	C.backend_button(x11Button(button), 0)
}

// Scroll applies a vertical scroll delta.
func (b *Backend) Scroll(dy float64) {
	C.backend_scroll(C.double(dy))
}

// KeyPress taps a single named key.
func (b *Backend) KeyPress(key string) {
	ks := KeysymFor(key)
	if ks == 0 {
		log.Printf("inputbackend: unmapped key %q", key)
		return
	}
	C.backend_key(C.uint(ks), 1)
	C.backend_key(C.uint(ks), 0)
}

// Hotkey holds every key in order, then releases in reverse order,
// producing a standard modifier-then-key chord (e.g. ctrl+alt+del).
func (b *Backend) Hotkey(keys []string) {
	var held []uint
	for _, k := range keys {
		ks := KeysymFor(k)
		if ks == 0 {
			continue
		}
		held = append(held, ks)
		C.backend_key(C.uint(ks), 1)
	}
	for i := len(held) - 1; i >= 0; i-- {
		C.backend_key(C.uint(held[i]), 0)
	}
}

// TypeText taps each rune in text in sequence.
func (b *Backend) TypeText(text string) {
	for _, r := range text {
		ks := keysymForRune(r)
		if ks == 0 {
			continue
		}
		C.backend_key(C.uint(ks), 1)
		C.backend_key(C.uint(ks), 0)
	}
}

// Press taps a named media key (volumeup/volumedown/volumemute), used by
// the /volume endpoints. Reports whether the key was recognized.
func (b *Backend) Press(name string) bool {
	ks, ok := mediaKeyMap[strings.ToLower(name)]
	if !ok {
		return false
	}
	C.backend_key(C.uint(ks), 1)
	C.backend_key(C.uint(ks), 0)
	return true
}
