package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// leeway absorbs clock skew between the issuing and validating hosts.
const leeway = 30 * time.Second

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues and validates bearer tokens.
type Authenticator struct {
	secretKey []byte
	issuer    string
	validity  time.Duration
	parser    *jwt.Parser
}

// NewAuthenticator creates an Authenticator signing with HS256. Tokens from a
// different issuer are rejected.
func NewAuthenticator(secretKey string, issuer string, validity time.Duration) *Authenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(leeway),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &Authenticator{
		secretKey: []byte(secretKey),
		issuer:    issuer,
		validity:  validity,
		parser:    jwt.NewParser(opts...),
	}
}

// Validity is how long issued tokens stay valid.
func (a *Authenticator) Validity() time.Duration {
	return a.validity
}

// GenerateToken signs a token for a user.
func (a *Authenticator) GenerateToken(userID, email, role string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(a.validity)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    a.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secretKey)
}

// ValidateToken checks signature, issuer and expiry and returns the claims.
// A token without a subject is invalid.
func (a *Authenticator) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := a.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.secretKey, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case err != nil:
		return nil, errors.Join(ErrInvalidToken, err)
	case !token.Valid || claims.UserID == "":
		return nil, ErrInvalidToken
	}
	return claims, nil
}
