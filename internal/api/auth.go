package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
)

type contextKey string

const contextKeyCaller contextKey = "pegpool.caller"

// Authenticator resolves the calling account from an HMAC-signed bearer token
// whose subject is the account's hex address.
type Authenticator struct {
	secret []byte
	issuer string
	leeway time.Duration
}

func NewAuthenticator(secret, issuer string) (*Authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &Authenticator{secret: []byte(secret), issuer: issuer, leeway: 2 * time.Minute}, nil
}

// Middleware rejects requests without a valid token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", errors.New("missing bearer token"))
			return
		}
		caller, err := a.Caller(token)
		if err != nil {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHENTICATED", err)
			return
		}
		ctx := context.WithValue(r.Context(), contextKeyCaller, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Caller validates token and returns its subject address.
func (a *Authenticator) Caller(token string) (common.Address, error) {
	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.leeway),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return common.Address{}, errors.New("invalid token")
	}
	if !common.IsHexAddress(claims.Subject) {
		return common.Address{}, fmt.Errorf("token subject %q is not an address", claims.Subject)
	}
	return common.HexToAddress(claims.Subject), nil
}

// Issue signs an HS256 token for caller valid for ttl.
func (a *Authenticator) Issue(caller common.Address, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   caller.Hex(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func callerFrom(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(contextKeyCaller).(common.Address)
	return caller, ok
}

func extractBearer(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
