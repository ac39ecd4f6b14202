// Package xorpad implements the cycling XOR obfuscation applied to sticker
// assets inside downloaded pack archives.
//
// The scheme is symmetric: applying the pad twice restores the original
// bytes, so a single Decrypt covers both directions.
package xorpad

import "errors"

// defaultKey is the keystream used by store archives.
var defaultKey = []byte{
	0x1f, 0x9c, 0x3a, 0x75, 0xe2, 0x48, 0xb1, 0x07,
	0x5d, 0xc6, 0x2e, 0x93, 0x64, 0xfa, 0x0b, 0x58,
}

// ErrEmptyKey reports a pad constructed without keystream bytes.
var ErrEmptyKey = errors.New("xorpad: empty key")

// Pad applies a repeating XOR keystream to byte slices.
type Pad struct {
	key []byte
}

// New builds a Pad from the provided keystream bytes.
func New(key []byte) (*Pad, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	cp := make([]byte, len(key))
	copy(cp, key)
	return &Pad{key: cp}, nil
}

// Decrypt XORs data against the cycling keystream and returns the result as a
// fresh slice. The input is never modified. Empty input is returned as-is.
func (p *Pad) Decrypt(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ p.key[i%len(p.key)]
	}
	return out
}

var defaultPad = &Pad{key: defaultKey}

// Decrypt applies the store keystream using the package default pad.
func Decrypt(data []byte) []byte {
	return defaultPad.Decrypt(data)
}

// Default returns the pad configured with the store keystream.
func Default() *Pad {
	return defaultPad
}
