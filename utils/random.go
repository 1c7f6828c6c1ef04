package utils

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// NewID returns a random RFC 4122 v4 identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return ""
	}

	// Set version (4) and variant bits per RFC 4122.
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80

	return fmt.Sprintf(
		"%s-%s-%s-%s-%s",
		hex.EncodeToString(b[0:4]),
		hex.EncodeToString(b[4:6]),
		hex.EncodeToString(b[6:8]),
		hex.EncodeToString(b[8:10]),
		hex.EncodeToString(b[10:16]),
	)
}

// GenerateCredential returns a non-guessable admission credential used
// as the QR payload of a ticket. 32 random bytes give enough entropy
// that credentials are globally unique in practice.
func GenerateCredential() (string, error) {
	byt := make([]byte, 32)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return "TKT-" + base64.RawURLEncoding.EncodeToString(byt), nil
}

// GenerateCode returns an uppercase hex reference code of n random bytes.
func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)
	if _, err := rand.Read(byt); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(byt)), nil
}
