package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Principal kinds carried in the token `type` claim. Admins are not users.
const (
	PrincipalUser  = "user"
	PrincipalAdmin = "admin"
)

var (
	ErrTokenExpired   = errors.New("token has expired")
	ErrTokenMalformed = errors.New("token is malformed or does not verify")
	ErrWrongTokenType = errors.New("token is of the wrong kind")
)

// Claims are the JWT claims for both token kinds. Refresh tokens additionally
// carry a unique ID (jti) that the session store consumes on rotation.
type Claims struct {
	PrincipalType string `json:"type"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed access and refresh tokens with a
// symmetric secret read from configuration at startup.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewTokenService creates a token service. TTL zero values fall back to the
// contract defaults: 15 minutes access, 7 days refresh.
func NewTokenService(secret string, accessTTL, refreshTTL time.Duration) *TokenService {
	if accessTTL == 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL == 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &TokenService{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
}

// AccessTTLSeconds is the advertised expiresIn for issued access tokens.
func (s *TokenService) AccessTTLSeconds() int {
	return int(s.accessTTL.Seconds())
}

// IssueAccess signs a new access token for the principal.
func (s *TokenService) IssueAccess(subject, principalType string) (string, error) {
	now := time.Now()
	claims := Claims{
		PrincipalType: principalType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// IssueRefresh signs a new refresh token and returns its jti and expiry so the
// session store can persist the record alongside the principal.
func (s *TokenService) IssueRefresh(subject, principalType string) (token, jti string, expiresAt time.Time, err error) {
	now := time.Now()
	jti = uuid.New().String()
	expiresAt = now.Add(s.refreshTTL)
	claims := Claims{
		PrincipalType: principalType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	return token, jti, expiresAt, err
}

// VerifyAccess verifies an access token. When wantType is non-empty the token
// must carry that principal type; a mismatch fails with ErrWrongTokenType.
func (s *TokenService) VerifyAccess(token, wantType string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	// Refresh tokens carry a jti; they are not valid as access tokens.
	if claims.ID != "" {
		return nil, ErrWrongTokenType
	}
	if wantType != "" && claims.PrincipalType != wantType {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

// VerifyRefresh verifies a refresh token and returns its claims, including the
// jti consulted by the session store.
func (s *TokenService) VerifyRefresh(token string) (*Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (s *TokenService) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if claims.PrincipalType != PrincipalUser && claims.PrincipalType != PrincipalAdmin {
		return nil, ErrTokenMalformed
	}
	return claims, nil
}
