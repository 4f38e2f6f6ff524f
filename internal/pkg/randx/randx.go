/*
Package randx generates cryptographically secure identifiers.

Session ids are fixed-length Base62 strings; connection ids are UUID v4 strings.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	// Base62Chars defines the character set used for Base62 encoding (0-9, A-Z, a-z).
	Base62Chars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// SessionIDLength is the length of a generated session id.
	SessionIDLength = 32
)

var base62Len = big.NewInt(int64(len(Base62Chars)))

// Base62 returns n random Base62 characters read from crypto/rand.
func Base62(n int) (string, error) {
	out := make([]byte, n)
	for i := range n {
		num, err := rand.Int(rand.Reader, base62Len)
		if err != nil {
			return "", fmt.Errorf("failed to read random number: %w", err)
		}
		out[i] = Base62Chars[num.Int64()]
	}
	return string(out), nil
}

// SessionID generates a new opaque session id.
func SessionID() (string, error) {
	return Base62(SessionIDLength)
}

// IsValidSessionID reports whether id has the shape produced by SessionID.
func IsValidSessionID(id string) bool {
	if len(id) != SessionIDLength {
		return false
	}
	for _, c := range id {
		if !strings.ContainsRune(Base62Chars, c) {
			return false
		}
	}
	return true
}

// ConnID generates a UUID v4 string identifying one realtime connection.
func ConnID() string {
	return uuid.NewString()
}
