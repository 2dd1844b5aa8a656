package sessionstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-holocrypt/middleware/jwtware"
)

// ErrUnverifiable is returned by Validate when no key is configured
var ErrUnverifiable = errors.New("access token cannot be verified, no key configured")

// VerifierConfig selects how access tokens are checked. JWKSURL wins over
// Secret; with neither, tokens are only decoded.
type VerifierConfig struct {
	Secret         string
	JWKSURL        string
	Issuer         string
	Audience       string
	Leeway         time.Duration
	OnRefreshError func(error)
}

// Verifier decodes and, when keys are known, verifies access tokens
type Verifier struct {
	keyFunc jwt.Keyfunc
	parser  *jwt.Parser
}

var _ jwtware.TokenValidator = (*Verifier)(nil)

// NewVerifier builds a verifier. JWKS sources are fetched right away.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	src := jwtware.KeySource{OnRefreshError: cfg.OnRefreshError}
	switch {
	case cfg.JWKSURL != "":
		src.JWKSetURLs = []string{cfg.JWKSURL}
	case cfg.Secret != "":
		src.SigningKey = jwtware.SigningKey{
			Key:    []byte(cfg.Secret),
			JWTAlg: jwt.SigningMethodHS256.Alg(),
		}
	}

	opts := []jwt.ParserOption{jwt.WithLeeway(cfg.Leeway)}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	v := &Verifier{parser: jwt.NewParser(opts...)}
	if src.Empty() {
		return v, nil
	}

	keyFunc, err := jwtware.BuildKeyFunc(src)
	if err != nil {
		return nil, fmt.Errorf("token verifier: %w", err)
	}
	v.keyFunc = keyFunc
	return v, nil
}

// Verifies reports whether signatures are checked
func (v *Verifier) Verifies() bool {
	return v != nil && v.keyFunc != nil
}

// Parse returns the claims of raw. Signatures are checked when the
// verifier has keys; otherwise the token is only decoded.
func (v *Verifier) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	if !v.Verifies() {
		if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
			return nil, err
		}
		return claims, nil
	}

	if _, err := v.parser.ParseWithClaims(raw, claims, v.keyFunc); err != nil {
		return nil, err
	}
	return claims, nil
}

// Validate implements jwtware.TokenValidator. Unlike Parse it refuses to
// trust tokens it cannot verify.
func (v *Verifier) Validate(raw string) (jwtware.AuthClaims, error) {
	if !v.Verifies() {
		return nil, ErrUnverifiable
	}
	return v.Parse(raw)
}
