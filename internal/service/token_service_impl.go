package service

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jnst/theshop-core/internal/model"
)

// refreshTokenBytes is the entropy of an opaque refresh token.
const refreshTokenBytes = 64

// AccessClaims are the claims carried by an access token. The subject is the
// account id and the registered ID is the session's jti.
type AccessClaims struct {
	jwt.RegisteredClaims

	Email string     `json:"email"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
}

// Principal converts verified claims into the request caller.
func (c *AccessClaims) Principal() (model.Principal, error) {
	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return model.Principal{}, fmt.Errorf("%w: bad subject", model.ErrInvalidToken)
	}

	return model.Principal{UserID: userID, Email: c.Email, Name: c.Name, Role: c.Role, JTI: c.ID}, nil
}

// IssuedToken is a signed access token with its identifiers.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// TokenOptions configures TokenServiceImpl.
type TokenOptions struct {
	Secret         []byte
	Issuer         string
	Audience       string
	AccessTokenTTL time.Duration
	Now            func() time.Time
}

// TokenServiceImpl implements TokenService with HS256 JWTs.
type TokenServiceImpl struct {
	opts TokenOptions
}

// NewTokenServiceImpl creates a new TokenService implementation.
func NewTokenServiceImpl(opts TokenOptions) (TokenService, error) {
	if len(opts.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}

	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 6 * time.Hour
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &TokenServiceImpl{opts: opts}, nil
}

// IssueAccessToken signs a token for account with a fresh jti.
func (s *TokenServiceImpl) IssueAccessToken(account *model.Account) (*IssuedToken, error) {
	now := s.opts.Now()
	jti := uuid.NewString()
	expiresAt := now.Add(s.opts.AccessTokenTTL)

	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.opts.Issuer,
			Subject:   account.ID.String(),
			Audience:  jwt.ClaimStrings{s.opts.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jti,
		},
		Email: account.Email,
		Name:  account.DisplayName(),
		Role:  account.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.opts.Secret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	return &IssuedToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

// IssueRefreshToken returns 64 random bytes, base64 encoded.
func (*TokenServiceImpl) IssueRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	return base64.StdEncoding.EncodeToString(b), nil
}

// ParseAccessToken verifies signature, issuer, audience and lifetime.
func (s *TokenServiceImpl) ParseAccessToken(token string) (*AccessClaims, error) {
	return s.parse(token)
}

// ParseExpiredAccessToken verifies the signature, issuer and audience only.
func (s *TokenServiceImpl) ParseExpiredAccessToken(token string) (*AccessClaims, error) {
	claims, err := s.parse(token, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, err
	}

	// Claims validation is skipped wholesale, so issuer and audience are checked here.
	if claims.Issuer != s.opts.Issuer || !slices.Contains(claims.Audience, s.opts.Audience) {
		return nil, fmt.Errorf("%w: issuer or audience mismatch", model.ErrInvalidToken)
	}

	return claims, nil
}

func (s *TokenServiceImpl) parse(token string, extra ...jwt.ParserOption) (*AccessClaims, error) {
	opts := append([]jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.opts.Issuer),
		jwt.WithAudience(s.opts.Audience),
		jwt.WithTimeFunc(s.opts.Now),
	}, extra...)

	claims := &AccessClaims{}
	if _, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.opts.Secret, nil
	}, opts...); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidToken, err)
	}

	if claims.ID == "" {
		return nil, fmt.Errorf("%w: missing jti", model.ErrInvalidToken)
	}

	return claims, nil
}
