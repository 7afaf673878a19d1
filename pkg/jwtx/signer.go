package jwtx

import "errors"

// Signer is anything that can turn Claims into a signed compact JWT.
type Signer interface {
	Alg() string
	Sign(Claims) (string, error)
}

// Verifier validates a compact JWT and returns its claims if it is legit.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
)
