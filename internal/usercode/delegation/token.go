package delegation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAudience is the audience of credentials minted for action servers.
const DefaultAudience = "action-server"

// DefaultTokenTTL is the lifetime of a credential.
const DefaultTokenTTL = 5 * time.Minute

// WildcardScope grants every permission on the bound bot.
const WildcardScope = "*"

var (
	ErrNoSecret     = errors.New("signing secret is empty")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload of a delegation credential.
type Claims struct {
	BotID       string   `json:"botId"`
	Scopes      []string `json:"scopes"`
	WorkspaceID string   `json:"workspaceId"`
	jwt.RegisteredClaims
}

// Signer mints short-lived HS256 credentials.
type Signer struct {
	secret   []byte
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewSigner returns a signer. An empty audience or non-positive ttl selects
// the defaults.
func NewSigner(secret []byte, audience string, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	if audience == "" {
		audience = DefaultAudience
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Signer{secret: secret, audience: audience, ttl: ttl, now: time.Now}, nil
}

// Sign returns a credential for botID scoped to every permission of the bot.
func (s *Signer) Sign(botID, workspaceID string) (string, error) {
	now := s.now()
	claims := Claims{
		BotID:       botID,
		Scopes:      []string{WildcardScope},
		WorkspaceID: workspaceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token for %s: %w", botID, err)
	}
	return token, nil
}

// Verify checks the signature, expiry and audience of a credential.
func Verify(secret []byte, audience, token string) (*Claims, error) {
	if audience == "" {
		audience = DefaultAudience
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.BotID == "" {
		return nil, fmt.Errorf("%w: missing botId", ErrInvalidToken)
	}
	return claims, nil
}
