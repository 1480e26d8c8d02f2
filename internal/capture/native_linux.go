//go:build linux

package capture

/*
#cgo pkg-config: x11 xext xfixes
#include <X11/Xlib.h>
#include <X11/Xutil.h>
#include <X11/extensions/XShm.h>
#include <X11/extensions/Xfixes.h>
#include <sys/ipc.h>
#include <sys/shm.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
	Display *display;
	Window root;
	XShmSegmentInfo shminfo;
	XImage *image;
	int width;
	int height;
} nativeGrabber;

static nativeGrabber* grabber_init(const char *display_name) {
	nativeGrabber *c = (nativeGrabber*)calloc(1, sizeof(nativeGrabber));
	if (!c) return NULL;

	c->display = XOpenDisplay(display_name);
	if (!c->display) { free(c); return NULL; }

	int screen = DefaultScreen(c->display);
	c->root = RootWindow(c->display, screen);
	c->width = DisplayWidth(c->display, screen);
	c->height = DisplayHeight(c->display, screen);

	c->image = XShmCreateImage(c->display,
		DefaultVisual(c->display, screen),
		DefaultDepth(c->display, screen),
		ZPixmap, NULL, &c->shminfo,
		c->width, c->height);
	if (!c->image) {
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	c->shminfo.shmid = shmget(IPC_PRIVATE,
		c->image->bytes_per_line * c->image->height,
		IPC_CREAT | 0600);
	if (c->shminfo.shmid < 0) {
		XDestroyImage(c->image);
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	c->shminfo.shmaddr = c->image->data = (char*)shmat(c->shminfo.shmid, NULL, 0);
	c->shminfo.readOnly = False;

	if (!XShmAttach(c->display, &c->shminfo)) {
		shmdt(c->shminfo.shmaddr);
		shmctl(c->shminfo.shmid, IPC_RMID, NULL);
		XDestroyImage(c->image);
		XCloseDisplay(c->display);
		free(c);
		return NULL;
	}

	shmctl(c->shminfo.shmid, IPC_RMID, NULL);
	return c;
}

static int grabber_grab(nativeGrabber *c) {
	if (!XShmGetImage(c->display, c->root, c->image, 0, 0, AllPlanes)) {
		return -1;
	}
	return 0;
}

static void grabber_composite_cursor(nativeGrabber *c) {
	XFixesCursorImage *cursor = XFixesGetCursorImage(c->display);
	if (!cursor) return;

	int cx = cursor->x - cursor->xhot;
	int cy = cursor->y - cursor->yhot;

	for (int y = 0; y < (int)cursor->height; y++) {
		int dy = cy + y;
		if (dy < 0 || dy >= c->height) continue;
		for (int x = 0; x < (int)cursor->width; x++) {
			int dx = cx + x;
			if (dx < 0 || dx >= c->width) continue;

			unsigned long pixel = cursor->pixels[y * cursor->width + x];
			unsigned char a = (pixel >> 24) & 0xFF;
			if (a == 0) continue;

			unsigned char cr = (pixel >> 0) & 0xFF;
			unsigned char cg = (pixel >> 8) & 0xFF;
			unsigned char cb = (pixel >> 16) & 0xFF;

			int offset = dy * c->image->bytes_per_line + dx * 4;
			unsigned char *dst = (unsigned char*)c->image->data + offset;

			if (a == 255) {
				dst[0] = cb;
				dst[1] = cg;
				dst[2] = cr;
			} else {
				dst[0] = (cb * a + dst[0] * (255 - a)) / 255;
				dst[1] = (cg * a + dst[1] * (255 - a)) / 255;
				dst[2] = (cr * a + dst[2] * (255 - a)) / 255;
			}
		}
	}
	XFree(cursor);
}

static void grabber_destroy(nativeGrabber *c) {
	if (!c) return;
	XShmDetach(c->display, &c->shminfo);
	shmdt(c->shminfo.shmaddr);
	XDestroyImage(c->image);
	XCloseDisplay(c->display);
	free(c);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"
)

// maxConsecutiveGrabFailures is the threshold after which the native
// backend disables itself and the MJPEG streamer must fall back to the
// ffmpeg/gstreamer/screenshot backends.
const maxConsecutiveGrabFailures = 10

// Frame is one raw BGRA grab from the native backend, paired with a
// monotonic sequence id so the streamer can detect whether a new frame
// is available without hashing pixel data.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Stride     int
	SequenceID uint64
}

// NativeBackend grabs BGRA frames directly via X11 SHM, with cursor
// compositing. It disables itself after maxConsecutiveGrabFailures
// unrecoverable errors and records why, for diagnostics.
type NativeBackend struct {
	display string

	mu             sync.Mutex
	handle         *C.nativeGrabber
	seq            uint64
	grabs          int64
	fails          int64
	disabledReason string
	withCursor     bool
}

// NewNativeBackend builds a native grabber for the given X display (empty
// string selects the default display).
func NewNativeBackend(display string, withCursor bool) *NativeBackend {
	return &NativeBackend{display: display, withCursor: withCursor}
}

func (n *NativeBackend) Name() string { return BackendNative }

// Start opens the X11 connection and SHM segment.
func (n *NativeBackend) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handle != nil {
		return nil
	}
	var cDisplay *C.char
	if n.display != "" {
		cDisplay = C.CString(n.display)
		defer C.free(unsafe.Pointer(cDisplay))
	}
	h := C.grabber_init(cDisplay)
	if h == nil {
		return fmt.Errorf("native capture: failed to open X11 display %q", n.display)
	}
	n.handle = h
	return nil
}

// Stop releases the X11/SHM resources.
func (n *NativeBackend) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handle != nil {
		C.grabber_destroy(n.handle)
		n.handle = nil
	}
}

// Grab returns the latest BGRA frame, compositing the cursor when enabled.
func (n *NativeBackend) Grab() (*Frame, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.handle == nil {
		return nil, fmt.Errorf("native capture: not started")
	}
	if n.disabledReason != "" {
		return nil, fmt.Errorf("native capture: disabled: %s", n.disabledReason)
	}

	if C.grabber_grab(n.handle) != 0 {
		n.fails++
		atomic.AddInt64(&n.fails, 0)
		if n.fails >= maxConsecutiveGrabFailures {
			n.disabledReason = fmt.Sprintf("%d consecutive grab failures", n.fails)
		}
		return nil, fmt.Errorf("native capture: XShmGetImage failed")
	}
	n.fails = 0

	if n.withCursor {
		C.grabber_composite_cursor(n.handle)
	}

	size := int(n.handle.image.bytes_per_line) * int(n.handle.height)
	data := C.GoBytes(unsafe.Pointer(n.handle.image.data), C.int(size))
	n.seq++
	n.grabs++

	return &Frame{
		Data:       data,
		Width:      int(n.handle.width),
		Height:     int(n.handle.height),
		Stride:     int(n.handle.image.bytes_per_line),
		SequenceID: n.seq,
	}, nil
}

// Stats reports grab counters and the disabled-reason diagnostic.
func (n *NativeBackend) Stats() Stats {
	n.mu.Lock()
	defer n.mu.Unlock()
	return Stats{
		Name:           BackendNative,
		Available:      n.disabledReason == "",
		DisabledReason: n.disabledReason,
		FramesGrabbed:  n.grabs,
		GrabFailures:   n.fails,
	}
}

// Health reports whether the backend has not yet disabled itself.
func (n *NativeBackend) Health() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.disabledReason == ""
}
