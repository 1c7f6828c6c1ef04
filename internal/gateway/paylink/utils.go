package paylink

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

func requestID() (string, error) {
	min := big.NewInt(100000000000000000)
	max := big.NewInt(999999999999999999)
	n, err := rand.Int(rand.Reader, new(big.Int).Sub(max, min))
	if err != nil {
		return "", err
	}

	n.Add(n, min)
	return n.String(), nil
}

// Hmac256 generates the HMAC-SHA256 signature of a request body.
func Hmac256(body, key []byte) string {
	hash := hmac.New(sha256.New, key)
	hash.Write(body)
	return hex.EncodeToString(hash.Sum(nil))
}

// VerifySignature compares the signature a webhook carried against the
// locally computed one in constant time.
func VerifySignature(body []byte, key []byte, signature string) bool {
	expected := Hmac256(body, key)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HashWebhookSecret stores the shared webhook secret as a bcrypt hash so
// the plain value never ends up in config dumps.
func HashWebhookSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareWebhookSecret checks a presented secret against its stored hash.
func CompareWebhookSecret(hash, secret string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
