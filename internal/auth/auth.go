// Package auth admits socket connections by verifying the caller identity
// carried on the upgrade request.
package auth

import (
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/golang-jwt/jwt"
	"github.com/rakutentech/jwk-go/jwk"

	"uk.co.dudmesh.parley/internal/model"
)

const (
	ClaimUserID   = "userId"
	ParamToken    = "token"
	ParamCallerID = "callerId"
)

type Options struct {
	Secret        string
	PublicJWK     string
	PublicJWKFile string
	AllowCallerID bool
}

type Gate struct {
	secret        []byte
	publicKey     atomic.Pointer[ecdsa.PublicKey]
	keyFile       string
	allowCallerID bool
}

func New(options Options) (*Gate, error) {
	gate := &Gate{
		allowCallerID: options.AllowCallerID,
	}
	if options.Secret != "" {
		gate.secret = []byte(options.Secret)
	}
	if options.PublicJWK != "" {
		publicKey, err := DecodePublicKey(options.PublicJWK)
		if err != nil {
			return nil, err
		}
		gate.publicKey.Store(publicKey)
	}
	if options.PublicJWKFile != "" {
		gate.keyFile = options.PublicJWKFile
		if err := gate.loadKeyFile(); err != nil {
			return nil, err
		}
	}
	return gate, nil
}

// Enabled reports whether any admission method is configured.
func (g *Gate) Enabled() bool {
	return g.secret != nil || g.publicKey.Load() != nil || g.allowCallerID
}

// Authenticate returns the handle of the caller. The token is read from the
// token query parameter, browsers cannot set headers on a websocket upgrade,
// or from a bearer Authorization header.
func (g *Gate) Authenticate(r *http.Request) (model.Handle, error) {
	token := r.URL.Query().Get(ParamToken)
	if token == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}

	if token != "" {
		return g.Verify(token)
	}

	if g.allowCallerID {
		if callerID := strings.TrimSpace(r.URL.Query().Get(ParamCallerID)); callerID != "" {
			return model.Handle(callerID), nil
		}
	}

	return "", model.ErrorMissingIdentity
}

// Verify checks the token signature and expiry and returns its userId claim.
func (g *Gate) Verify(token string) (model.Handle, error) {
	parsed, err := jwt.Parse(token, g.keyFor)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrorInvalidToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", model.ErrorInvalidToken
	}

	userID, _ := claims[ClaimUserID].(string)
	if userID == "" {
		return "", fmt.Errorf("%w: missing %s claim", model.ErrorInvalidToken, ClaimUserID)
	}

	return model.Handle(userID), nil
}

func (g *Gate) keyFor(token *jwt.Token) (interface{}, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if g.secret == nil {
			return nil, fmt.Errorf("no shared secret configured")
		}
		return g.secret, nil
	case *jwt.SigningMethodECDSA:
		publicKey := g.publicKey.Load()
		if publicKey == nil {
			return nil, fmt.Errorf("no issuer key configured")
		}
		return publicKey, nil
	}
	return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
}

// DecodePublicKey parses an ECDSA public key in JWK form, either as raw JSON
// or base64 encoded.
func DecodePublicKey(publicKey string) (*ecdsa.PublicKey, error) {
	keyData := strings.TrimSpace(publicKey)
	if !strings.HasPrefix(keyData, "{") {
		decoded, err := base64.StdEncoding.DecodeString(keyData)
		if err != nil {
			return nil, fmt.Errorf("decoding public key: %w", err)
		}
		keyData = string(decoded)
	}

	keySpec, err := jwk.Parse(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	key, ok := keySpec.Key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is %T, not ECDSA", keySpec.Key)
	}
	return key, nil
}

// EncodePublicKey renders an ES256 verification key as base64 encoded JWK.
func EncodePublicKey(publicKey *ecdsa.PublicKey, keyID string) (string, error) {
	rawJWK, err := jwk.NewSpec(publicKey).ToJWK()
	if err != nil {
		return "", fmt.Errorf("creating JWK: %w", err)
	}

	rawJWK.Use = "sig"
	rawJWK.Alg = "ES256"
	rawJWK.Kid = keyID
	if rawJWK.Crv == "" {
		rawJWK.Crv = publicKey.Curve.Params().Name
	}

	keyData, err := rawJWK.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshalling JWK: %w", err)
	}
	return base64.StdEncoding.EncodeToString(keyData), nil
}
