package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenInvalid covers malformed, expired and mis-signed tokens alike.
	ErrTokenInvalid    = errors.New("token_invalid")
	ErrClaimExtraction = errors.New("claim_extraction_error")
)

const (
	DefaultAccessTokenTTL  = 5 * time.Hour
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Audiences tell access and refresh tokens apart; both share one secret.
const (
	AudienceAccess  = "access"
	AudienceRefresh = "refresh"
)

// Identity is the minimal user snapshot carried by access tokens and cached
// behind refresh tokens.
type Identity struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{Email: c.Email, Name: c.Name, Role: c.Role}
}

// Codec signs and verifies HS256 tokens with a single shared secret.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewCodec(secret []byte, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("missing_signing_secret")
	}
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	return &Codec{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

func (c *Codec) AccessTTL() time.Duration  { return c.accessTTL }
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

func (c *Codec) IssueAccessToken(identity Identity) (string, error) {
	now := c.now()
	claims := Claims{
		Email: identity.Email,
		Name:  identity.Name,
		Role:  identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.Email,
			Audience:  jwt.ClaimStrings{AudienceAccess},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.accessTTL)),
		},
	}
	return c.sign(claims)
}

// IssueRefreshToken embeds only the subject; the profile lives in the cache
// entry keyed by the returned token.
func (c *Codec) IssueRefreshToken(email string) (string, error) {
	now := c.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Audience:  jwt.ClaimStrings{AudienceRefresh},
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.refreshTTL)),
		},
	}
	return c.sign(claims)
}

func (c *Codec) sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Parse is the single parse step for every token. Any failure is reported as
// ErrTokenInvalid.
func (c *Codec) Parse(tokenString string) (*Claims, error) {
	return c.parse(tokenString)
}

// ParseAccess is Parse restricted to access tokens; it backs bearer checks.
func (c *Codec) ParseAccess(tokenString string) (*Claims, error) {
	return c.parse(tokenString, jwt.WithAudience(AudienceAccess))
}

func (c *Codec) parse(tokenString string, extra ...jwt.ParserOption) (*Claims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}, extra...)
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) Verify(tokenString string) bool {
	_, err := c.Parse(tokenString)
	return err == nil
}

// ExtractClaim returns one named claim as a string. It never panics on
// malformed input; unparsable tokens yield ErrClaimExtraction.
func (c *Codec) ExtractClaim(tokenString, name string) (string, error) {
	claims, err := c.Parse(tokenString)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrClaimExtraction, err)
	}
	switch name {
	case "email":
		return claims.Email, nil
	case "name":
		return claims.Name, nil
	case "role":
		return claims.Role, nil
	case "sub":
		return claims.Subject, nil
	case "jti":
		return claims.ID, nil
	case "iat":
		return unixString(claims.IssuedAt), nil
	case "exp":
		return unixString(claims.ExpiresAt), nil
	default:
		return "", fmt.Errorf("%w: unknown claim %q", ErrClaimExtraction, name)
	}
}

func unixString(date *jwt.NumericDate) string {
	if date == nil {
		return ""
	}
	return strconv.FormatInt(date.Unix(), 10)
}
