package auth

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrTokenInvalid = errors.New("token_invalid")

// AudienceAccess marks access tokens; refresh tokens carry a different
// audience and are never accepted as bearer credentials.
const AudienceAccess = "access"

// Claims mirrors the access-token claim set issued by the identity service.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 tokens against the shared secret. It never issues.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("missing_signing_secret")
	}
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithAudience(AudienceAccess),
		),
	}, nil
}

// ParseToken reports every failure as ErrTokenInvalid.
func (v *Verifier) ParseToken(tokenString string) (*Claims, error) {
	token, err := v.parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
