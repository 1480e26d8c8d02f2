package inputbackend

import "strings"

// X11 keysym constants used by the key name and media key maps.
const (
	xkBackSpace = 0xFF08
	xkTab       = 0xFF09
	xkReturn    = 0xFF0D
	xkEscape    = 0xFF1B
	xkDelete    = 0xFFFF
	xkHome      = 0xFF50
	xkLeft      = 0xFF51
	xkUp        = 0xFF52
	xkRight     = 0xFF53
	xkDown      = 0xFF54
	xkPageUp    = 0xFF55
	xkPageDown  = 0xFF56
	xkEnd       = 0xFF57
	xkInsert    = 0xFF63
	xkShiftL    = 0xFFE1
	xkControlL  = 0xFFE3
	xkCapsLock  = 0xFFE5
	xkAltL      = 0xFFE9
	xkSuperL    = 0xFFEB
	xkF1        = 0xFFBE
	xkSpace     = 0x0020

	xf86AudioLowerVolume = 0x1008FF11
	xf86AudioMute        = 0x1008FF12
	xf86AudioRaiseVolume = 0x1008FF13
)

// keyMap resolves the web KeyboardEvent.key / lowercased key names the
// socket protocol carries to X11 keysyms.
var keyMap = map[string]uint{
	"backspace":   xkBackSpace,
	"tab":         xkTab,
	"enter":       xkReturn,
	"escape":      xkEscape,
	"delete":      xkDelete,
	"home":        xkHome,
	"end":         xkEnd,
	"pageup":      xkPageUp,
	"pagedown":    xkPageDown,
	"arrowleft":   xkLeft,
	"arrowup":     xkUp,
	"arrowright":  xkRight,
	"arrowdown":   xkDown,
	"insert":      xkInsert,
	"shift":       xkShiftL,
	"control":     xkControlL,
	"ctrl":        xkControlL,
	"alt":         xkAltL,
	"meta":        xkSuperL,
	"super":       xkSuperL,
	"capslock":    xkCapsLock,
	" ":           xkSpace,
	"space":       xkSpace,
	"f1":          xkF1,
	"f2":          xkF1 + 1,
	"f3":          xkF1 + 2,
	"f4":          xkF1 + 3,
	"f5":          xkF1 + 4,
	"f6":          xkF1 + 5,
	"f7":          xkF1 + 6,
	"f8":          xkF1 + 7,
	"f9":          xkF1 + 8,
	"f10":         xkF1 + 9,
	"f11":         xkF1 + 10,
	"f12":         xkF1 + 11,
}

var mediaKeyMap = map[string]uint{
	"volumeup":   xf86AudioRaiseVolume,
	"volumedown": xf86AudioLowerVolume,
	"volumemute": xf86AudioMute,
}

// KeysymFor resolves a socket-protocol key name into an X11 keysym,
// falling back to the literal character for single printable runes.
func KeysymFor(key string) uint {
	if ks, ok := keyMap[strings.ToLower(key)]; ok {
		return ks
	}
	if len(key) == 1 {
		return keysymForRune(rune(key[0]))
	}
	return 0
}

func keysymForRune(r rune) uint {
	if r >= 0x20 && r <= 0x7E {
		return uint(r)
	}
	return 0
}
