/*
[AI GENERATED - GOVERNANCE PROTOCOL]
──────────────────────────────────────────────────────────────
Model:       internal-codegen-l3
Tier:        L4
Logic:       Opaque bearer token generation, peppered hashing,
             and display fingerprinting. The server never stores
             a raw token — only sha256(token||pepper) plus an
             8-char prefix/suffix survives past issuance. Pepper
             handling follows the same never-log, load-once
             discipline as a master-key-backed secret store.
Root Cause:  Sprint task G012 — token lifecycle primitives.
Context:     Every C3 operation (issue/validate/revoke) goes
             through HashToken; a raw token is only ever held in
             memory for the duration of the issuing request.
Suitability: L4 — security-critical primitive.
──────────────────────────────────────────────────────────────
*/

package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
)

const (
	tokenPrefix = "tk_"
	tokenBodyLen = 40 // printable chars after the prefix; total length >= 40 + len(prefix)
)

// tokenPattern is the bit-exact wire format from spec §6: ^tk_[a-z0-9_]{32,}$, length >= 40.
var tokenPattern = regexp.MustCompile(`^tk_[a-z0-9_]{32,}$`)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateToken produces a cryptographically random opaque token matching
// the wire format. Never logged, never persisted raw.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBodyLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	body := make([]byte, tokenBodyLen)
	for i, b := range buf {
		body[i] = alphabet[int(b)%len(alphabet)]
	}
	return tokenPrefix + string(body), nil
}

// ValidFormat reports whether a token string matches the bit-exact wire
// format, independent of whether it has ever been issued.
func ValidFormat(token string) bool {
	return len(token) >= 40 && tokenPattern.MatchString(token)
}

// HashToken computes the persisted form: sha256(token || pepper) as
// lowercase hex. The pepper is a server-side secret never derivable from
// the hash alone.
func HashToken(token, pepper string) string {
	sum := sha256.Sum256([]byte(token + pepper))
	return hex.EncodeToString(sum[:])
}

// Fingerprint returns the 8-char prefix and 8-char suffix of a raw token
// for display purposes — enough for a user to recognize "which token" in
// a token list without reconstructing the secret.
func Fingerprint(token string) (prefix, suffix string) {
	if len(token) < 16 {
		return token, token
	}
	return token[:8], token[len(token)-8:]
}
