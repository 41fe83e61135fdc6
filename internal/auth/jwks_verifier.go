package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	"github.com/auralis/api/internal/config"
)

const (
	discoveryPath    = "/.well-known/openid-configuration"
	discoveryTimeout = 10 * time.Second
	clockSkew        = 30 * time.Second
)

// asymmetricMethods are the signing algorithms accepted from an identity
// provider. Shared-secret algorithms are handled by HMACVerifier only.
var asymmetricMethods = []string{
	jwt.SigningMethodRS256.Alg(),
	jwt.SigningMethodRS384.Alg(),
	jwt.SigningMethodRS512.Alg(),
	jwt.SigningMethodPS256.Alg(),
	jwt.SigningMethodES256.Alg(),
	jwt.SigningMethodES384.Alg(),
	jwt.SigningMethodEdDSA.Alg(),
}

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Validate(tokenString string) (*Claims, error)
}

// Claims are the identity claims attached to a request.
type Claims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// discoveryDocument is the subset of the provider metadata used here.
type discoveryDocument struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// JWKSVerifier validates tokens signed by an identity provider whose keys
// are published as a JWK set. Keys are refreshed in the background.
type JWKSVerifier struct {
	keys   keyfunc.Keyfunc
	parser *jwt.Parser
}

// NewJWKSVerifier reads the provider metadata of cfg.Issuer, loads its key
// set and keeps it fresh until ctx is done.
func NewJWKSVerifier(ctx context.Context, cfg *config.AuthConfig) (*JWKSVerifier, error) {
	if cfg.Issuer == "" {
		return nil, errors.New("auth issuer is required")
	}

	doc, err := discover(ctx, &http.Client{Timeout: discoveryTimeout}, cfg.Issuer)
	if err != nil {
		return nil, err
	}

	keys, err := keyfunc.NewDefaultCtx(ctx, []string{doc.JWKSURI})
	if err != nil {
		return nil, fmt.Errorf("load key set %s: %w", doc.JWKSURI, err)
	}

	// Tokens carry the issuer exactly as the provider announces it.
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(asymmetricMethods),
		jwt.WithIssuer(doc.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &JWKSVerifier{keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// discover fetches the provider metadata and checks that it belongs to
// issuer. A document without an issuer is attributed to the configured one.
func discover(ctx context.Context, httpClient *http.Client, issuer string) (*discoveryDocument, error) {
	endpoint := strings.TrimRight(issuer, "/") + discoveryPath

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discovery request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint %s returned status %d", endpoint, resp.StatusCode)
	}

	var doc discoveryDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode discovery document: %w", err)
	}
	if doc.JWKSURI == "" {
		return nil, errors.New("discovery document has no jwks_uri")
	}

	switch {
	case doc.Issuer == "":
		doc.Issuer = issuer
	case strings.TrimRight(doc.Issuer, "/") != strings.TrimRight(issuer, "/"):
		return nil, fmt.Errorf("discovery document names issuer %q, expected %q", doc.Issuer, issuer)
	}
	return &doc, nil
}

// Validate checks the signature against the provider keys and the
// registered claims against the configured issuer and audience.
func (v *JWKSVerifier) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, v.keys.Keyfunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.UserID == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}
