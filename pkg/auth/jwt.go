package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrMissingToken     = errors.New("missing authentication token")
	ErrInvalidClaims    = errors.New("invalid token claims")
)

// Token uses distinguish the backend's own access tokens from the identity
// tokens minted by the development identity provider.
const (
	TokenUseAccess   = "access"
	TokenUseIdentity = "identity"
)

// Claims are the JWT claims carried by every todoflow token.
type Claims struct {
	UserID      string `json:"sub"`
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
	TokenUse    string `json:"token_use"`
	jwt.RegisteredClaims
}

// JWTConfig holds validation settings.
type JWTConfig struct {
	SigningMethod string // HS256 (default) or RS256
	PublicKey     string // PEM, RS256 only
	SecretKey     string
	Issuer        string
	Audience      []string
	TokenUse      string // empty accepts any
}

// JWTValidator parses and checks tokens.
type JWTValidator struct {
	keys     signingKeys
	issuer   string
	audience []string
	tokenUse string
}

// signingKeys pairs a signing method with the key used to sign and the key
// used to verify. For HS256 both are the shared secret.
type signingKeys struct {
	method jwt.SigningMethod
	sign   any
	verify any
}

func loadSigningKeys(method, secret, pemKey string, private bool) (signingKeys, error) {
	switch method {
	case "HS256", "":
		if secret == "" {
			return signingKeys{}, errors.New("HS256 needs a secret key")
		}
		return signingKeys{method: jwt.SigningMethodHS256, sign: []byte(secret), verify: []byte(secret)}, nil
	case "RS256":
		if pemKey == "" {
			return signingKeys{}, errors.New("RS256 needs a PEM key")
		}
		if private {
			key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(pemKey))
			if err != nil {
				return signingKeys{}, fmt.Errorf("parse RSA private key: %w", err)
			}
			return signingKeys{method: jwt.SigningMethodRS256, sign: key, verify: &key.PublicKey}, nil
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
		if err != nil {
			return signingKeys{}, fmt.Errorf("parse RSA public key: %w", err)
		}
		return signingKeys{method: jwt.SigningMethodRS256, verify: key}, nil
	default:
		return signingKeys{}, fmt.Errorf("signing method %q is not supported", method)
	}
}

func NewJWTValidator(config JWTConfig) (*JWTValidator, error) {
	keys, err := loadSigningKeys(config.SigningMethod, config.SecretKey, config.PublicKey, false)
	if err != nil {
		return nil, err
	}
	return &JWTValidator{
		keys:     keys,
		issuer:   config.Issuer,
		audience: config.Audience,
		tokenUse: config.TokenUse,
	}, nil
}

// ValidateToken validates a token string (with or without the Bearer prefix)
// and returns its claims.
func (v *JWTValidator) ValidateToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.keys.verify, nil
	}, jwt.WithValidMethods([]string{v.keys.method.Alg()}))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpiredToken
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	case !token.Valid:
		return nil, ErrInvalidClaims
	}

	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, fmt.Errorf("%w: issuer %q not accepted", ErrInvalidClaims, claims.Issuer)
	}
	if len(v.audience) > 0 && !slices.ContainsFunc(v.audience, func(aud string) bool {
		return slices.Contains(claims.Audience, aud)
	}) {
		return nil, fmt.Errorf("%w: audience not accepted", ErrInvalidClaims)
	}
	if v.tokenUse != "" && claims.TokenUse != v.tokenUse {
		return nil, fmt.Errorf("%w: token_use %q not accepted", ErrInvalidClaims, claims.TokenUse)
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidClaims)
	}

	return claims, nil
}

// JWTGeneratorConfig holds signing settings.
type JWTGeneratorConfig struct {
	SigningMethod string // HS256 (default) or RS256
	PrivateKey    string // PEM, RS256 only
	SecretKey     string
	Issuer        string
	Audience      []string
	ExpiryTime    time.Duration
	TokenUse      string
}

// JWTGenerator signs tokens.
type JWTGenerator struct {
	keys     signingKeys
	issuer   string
	audience []string
	ttl      time.Duration
	tokenUse string
	now      func() time.Time
}

func NewJWTGenerator(config JWTGeneratorConfig) (*JWTGenerator, error) {
	keys, err := loadSigningKeys(config.SigningMethod, config.SecretKey, config.PrivateKey, true)
	if err != nil {
		return nil, err
	}
	ttl := config.ExpiryTime
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &JWTGenerator{
		keys:     keys,
		issuer:   config.Issuer,
		audience: config.Audience,
		ttl:      ttl,
		tokenUse: config.TokenUse,
		now:      time.Now,
	}, nil
}

// GenerateToken signs a token for the given user and reports its expiry.
func (g *JWTGenerator) GenerateToken(userID, email, displayName string) (string, time.Time, error) {
	issuedAt := g.now()
	expiresAt := issuedAt.Add(g.ttl)
	claims := Claims{
		UserID:      userID,
		Email:       email,
		DisplayName: displayName,
		TokenUse:    g.tokenUse,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   userID,
			Audience:  g.audience,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(g.keys.method, claims).SignedString(g.keys.sign)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}
