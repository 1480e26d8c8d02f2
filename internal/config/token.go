package config

import (
	"crypto/rand"
	"encoding/base64"
)

// NewToken returns an opaque, 128-bit random, URL-safe token. Used for
// session tokens, QR tokens, and file-transfer download tokens.
func NewToken() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// NewPairingCode generates a 4-digit pairing code from a cryptographic
// random source.
func NewPairingCode() string {
	n, err := randInt(10000)
	if err != nil {
		panic(err)
	}
	return padZero(n, 4)
}

func randInt(n int) (int, error) {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return 0, err
	}
	v := int(buf[0])<<24 | int(buf[1])<<16 | int(buf[2])<<8 | int(buf[3])
	if v < 0 {
		v = -v
	}
	return v % n, nil
}

func padZero(n, width int) string {
	s := itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	return s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
