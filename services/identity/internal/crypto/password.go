package crypto

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidArgument marks a missing secret or hash. It is a programming
// error, not a user-facing condition.
var ErrInvalidArgument = errors.New("invalid_argument")

// Verifier is the one-way encode/match capability over bcrypt.
type Verifier struct {
	cost int
}

func NewVerifier(cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Verifier{cost: cost}
}

func (v *Verifier) Encode(raw string) (string, error) {
	if raw == "" {
		return "", ErrInvalidArgument
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), v.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (v *Verifier) Matches(raw, hash string) (bool, error) {
	if raw == "" || hash == "" {
		return false, ErrInvalidArgument
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil, nil
}
