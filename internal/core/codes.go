package core

import "math/rand/v2"

const codeAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	// DefaultCodeLength is the length of generated room codes.
	DefaultCodeLength = 6
	MinCodeLength     = 3
	MaxCodeLength     = 12
)

// CodeGenerator returns a candidate room code.
type CodeGenerator func() string

// NewCodeGenerator returns a generator of random lowercase base-36 codes.
// Lengths outside [MinCodeLength, MaxCodeLength] fall back to DefaultCodeLength.
func NewCodeGenerator(length int) CodeGenerator {
	if length < MinCodeLength || length > MaxCodeLength {
		length = DefaultCodeLength
	}
	return func() string {
		b := make([]byte, length)
		for i := range b {
			b[i] = codeAlphabet[rand.IntN(len(codeAlphabet))]
		}
		return string(b)
	}
}
