package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"slices"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-orders/internal/domain/auth"
	"github.com/xenking/kart-orders/pkg/httpmiddleware"
)

// HeaderAPIKey carries the caller's API key.
const HeaderAPIKey = "api_key"

// HashAPIKey returns the hex HMAC-SHA256 of key under pepper, as stored in
// the api_keys table.
func HashAPIKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticator resolves API keys to principals.
type Authenticator struct {
	apikeys auth.Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given key repository
// and HMAC pepper.
func NewAuthenticator(apikeys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{apikeys: apikeys, pepper: pepper}
}

// Authenticate returns the principal bound to key.
func (a *Authenticator) Authenticate(r *http.Request, key string) (auth.Principal, error) {
	if key == "" {
		return auth.Principal{}, auth.ErrUnauthorized
	}
	hash := HashAPIKey(a.pepper, key)

	info, err := a.apikeys.FindByHash(r.Context(), hash)
	if err != nil {
		return auth.Principal{}, errors.Wrap(err, "find key")
	}

	// Constant-time recheck of the stored hash.
	stored, err := hex.DecodeString(info.KeyHash)
	if err != nil {
		return auth.Principal{}, errors.Wrap(auth.ErrUnauthorized, "stored hash")
	}
	computed, _ := hex.DecodeString(hash)
	if subtle.ConstantTimeCompare(computed, stored) != 1 {
		return auth.Principal{}, auth.ErrUnauthorized
	}

	p := info.Principal()
	if err := p.Role.Validate(); err != nil {
		return auth.Principal{}, errors.Wrapf(err, "key %q", info.ID)
	}
	return p, nil
}

// Middleware authenticates the api_key header and stores the principal in
// the request context. Requests without a valid key get 401.
func (a *Authenticator) Middleware() httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := a.Authenticate(r, r.Header.Get(HeaderAPIKey))
			if err != nil {
				if !errors.Is(err, auth.ErrUnauthorized) {
					zctx.From(r.Context()).Error("Authenticate request", zap.Error(err))
				}
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := auth.WithPrincipal(r.Context(), p)
			ctx = zctx.With(ctx, zap.String("user_id", p.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets through principals holding one of roles and answers 403
// to everyone else. It runs behind the authenticator.
func RequireRole(roles ...auth.Role) httpmiddleware.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := auth.PrincipalFrom(r.Context())
			if !ok {
				httpmiddleware.WriteError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			if !slices.Contains(roles, p.Role) {
				httpmiddleware.WriteError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalKey keys rate limits by authenticated user, falling back to the
// client address.
func PrincipalKey(r *http.Request) string {
	if p, ok := auth.PrincipalFrom(r.Context()); ok {
		return "user:" + p.UserID
	}
	return "ip:" + httpmiddleware.ClientIP(r)
}
