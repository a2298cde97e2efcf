package rooms

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// Room codes are 6 characters over [A-Z0-9]: short enough to write on a
// whiteboard, long enough that collisions among live rooms are rare.
const (
	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength   = 6
)

var codePattern = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// GenerateCode returns a random room code. Bytes outside the largest
// multiple of the alphabet size are rejected and redrawn to keep the
// distribution uniform.
func GenerateCode() (string, error) {
	max := byte(256 - 256%len(codeAlphabet))
	code := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength*2)

	for len(code) < codeLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate room code: %w", err)
		}
		for _, b := range buf {
			if b >= max {
				continue
			}
			code = append(code, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(code) == codeLength {
				break
			}
		}
	}
	return string(code), nil
}

// NormalizeCode uppercases a client-supplied code. Lookups are
// case-insensitive; storage is always uppercase.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code has the canonical shape.
func ValidCode(code string) bool {
	return codePattern.MatchString(code)
}
