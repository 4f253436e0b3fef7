package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// defaultTokenTTL applies when TokenIssuer.TTL is zero.
const defaultTokenTTL = 15 * time.Minute

// Claims is the access token payload.
type Claims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
}

// TokenIssuer signs and verifies access tokens with a shared secret.
type TokenIssuer struct {
	Secret string
	Issuer string
	TTL    time.Duration

	// now is replaced in tests.
	now func() time.Time
}

func (ti *TokenIssuer) clock() time.Time {
	if ti.now != nil {
		return ti.now()
	}
	return time.Now()
}

// Issue creates a signed token for subject with role.
//
// Returns:
//   - string: The compact JWT
//   - time.Time: When it expires
//   - error: If signing fails
func (ti *TokenIssuer) Issue(subject string, role Role) (string, time.Time, error) {
	ttl := ti.TTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	now := ti.clock()
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    ti.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
		Role: role,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(ti.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing access token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies signature, expiry and issuer and returns the claims.
func (ti *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ti.clock),
		jwt.WithExpirationRequired(),
	}
	if ti.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(ti.Issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(ti.Secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	if !IsValidRole(claims.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrTokenInvalid, claims.Role)
	}
	return claims, nil
}
