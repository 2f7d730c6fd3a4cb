package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
)

// Login proves ownership of an ed25519 key: the client signs the challenge
// and the public key doubles as the account identity. Verification failures
// are split so the handler can tell a malformed key from a bad signature.

var (
	ErrBadPublicKey = errors.New("auth: malformed public key")
	ErrBadChallenge = errors.New("auth: malformed challenge")
	ErrBadSignature = errors.New("auth: signature does not match")
)

// VerifyChallenge checks that signatureB64 is a valid ed25519 signature of
// challengeB64 under publicKeyB64. All arguments are standard base64.
func VerifyChallenge(publicKeyB64, challengeB64, signatureB64 string) error {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return fmt.Errorf("%w: not base64", ErrBadPublicKey)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: got %d bytes", ErrBadPublicKey, len(publicKey))
	}

	challenge, err := base64.StdEncoding.DecodeString(challengeB64)
	if err != nil || len(challenge) == 0 {
		return ErrBadChallenge
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return ErrBadSignature
	}

	if !ed25519.Verify(ed25519.PublicKey(publicKey), challenge, signature) {
		return ErrBadSignature
	}
	return nil
}
