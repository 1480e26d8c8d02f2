//go:build !linux

package inputbackend

import "fmt"

// Backend is unavailable on this platform.
type Backend struct{}

// New always fails outside Linux; platform-specific input injection is
// not yet implemented for other OSes.
func New(displayName string) (*Backend, error) {
	return nil, fmt.Errorf("inputbackend: not supported on this platform")
}

func (b *Backend) Close()                              {}
func (b *Backend) MouseMove(dx, dy float64)             {}
func (b *Backend) MouseClick(button string, double bool) {}
func (b *Backend) MouseDown(button string)              {}
func (b *Backend) MouseUp(button string)                {}
func (b *Backend) Scroll(dy float64)                    {}
func (b *Backend) KeyPress(key string)                  {}
func (b *Backend) Hotkey(keys []string)                 {}
func (b *Backend) TypeText(text string)                 {}
func (b *Backend) Press(name string) bool               { return false }
