// Package pkce generates and checks S256 proof key pairs.
package pkce

import (
	"crypto/subtle"

	"golang.org/x/oauth2"
)

// MethodS256 is the only challenge method issued.
const MethodS256 = "S256"

// Pair holds a verifier and the challenge derived from it.
// The verifier never leaves the server; the challenge goes on the authorize redirect.
type Pair struct {
	Verifier  string
	Challenge string
	Method    string
}

// Generate returns a fresh pair. The verifier is 32 bytes from crypto/rand,
// base64url-encoded without padding (43 characters).
func Generate() Pair {
	verifier := oauth2.GenerateVerifier()
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}
}

// Challenge computes BASE64URL(SHA256(verifier)) without padding.
func Challenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// Verify reports whether challenge was derived from verifier.
func Verify(verifier, challenge string) bool {
	return subtle.ConstantTimeCompare([]byte(Challenge(verifier)), []byte(challenge)) == 1
}
