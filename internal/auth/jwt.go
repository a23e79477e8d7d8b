package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEmptyToken   = errors.New("empty token")
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingSub   = errors.New("sub claim missing")
)

// JWTValidator verifies bearer tokens issued by the account service and
// resolves the caller id from them.
type JWTValidator struct {
	alg       jwt.SigningMethod
	publicKey *rsa.PublicKey
	secret    []byte
}

// NewJWTValidatorRS256 loads a PEM encoded RSA public key from pubPath.
func NewJWTValidatorRS256(pubPath string) (*JWTValidator, error) {
	b, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	block, _ := pem.Decode(b)
	if block == nil {
		return nil, errors.New("invalid public PEM")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("not RSA public key")
	}
	return &JWTValidator{alg: jwt.SigningMethodRS256, publicKey: rsaPub}, nil
}

func NewJWTValidatorHS256(secret string) (*JWTValidator, error) {
	if secret == "" {
		return nil, errors.New("empty HS256 secret")
	}
	return &JWTValidator{alg: jwt.SigningMethodHS256, secret: []byte(secret)}, nil
}

// New picks the validator for alg ("RS256" or "HS256").
func New(alg, publicKeyPath, secret string) (*JWTValidator, error) {
	switch strings.ToUpper(alg) {
	case "RS256":
		return NewJWTValidatorRS256(publicKeyPath)
	case "HS256":
		return NewJWTValidatorHS256(secret)
	default:
		return nil, fmt.Errorf("unsupported jwt alg %q", alg)
	}
}

func (j *JWTValidator) key(t *jwt.Token) (interface{}, error) {
	if t.Method.Alg() != j.alg.Alg() {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	if j.publicKey != nil {
		return j.publicKey, nil
	}
	return j.secret, nil
}

// Validate returns the caller id carried in the "sub" claim, falling back to
// "user_id" and "id" for tokens minted by older clients.
func (j *JWTValidator) Validate(tokenStr string) (string, error) {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return "", ErrEmptyToken
	}
	token, err := jwt.Parse(tokenStr, j.key, jwt.WithValidMethods([]string{j.alg.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	for _, k := range []string{"sub", "user_id", "id"} {
		if v, ok := claims[k].(string); ok && strings.TrimSpace(v) != "" {
			return v, nil
		}
	}
	return "", ErrMissingSub
}
