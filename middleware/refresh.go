package middleware

import (
	"encoding/json"
	"net/http"

	goSession "github.com/MrEthical07/goSession"
)

// RefreshTokenHeader carries the refresh token on refresh requests.
const RefreshTokenHeader = "Refresh-Token"

type tokenResponse struct {
	Handle                string `json:"handle"`
	AccessToken           string `json:"access_token"`
	AccessTokenExpiresAt  int64  `json:"access_token_expires_at"`
	RefreshToken          string `json:"refresh_token"`
	RefreshTokenExpiresAt int64  `json:"refresh_token_expires_at"`
	AntiCSRFToken         string `json:"anti_csrf_token,omitempty"`
}

// WriteBundle writes b as JSON. Expiry times are unix seconds.
func WriteBundle(w http.ResponseWriter, status int, b *goSession.SessionBundle) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(tokenResponse{
		Handle:                b.Handle,
		AccessToken:           b.AccessToken.Value,
		AccessTokenExpiresAt:  b.AccessToken.ExpiresAt.Unix(),
		RefreshToken:          b.RefreshToken.Value,
		RefreshTokenExpiresAt: b.RefreshToken.ExpiresAt.Unix(),
		AntiCSRFToken:         b.AntiCSRFToken,
	})
}

// RefreshHandler consumes the refresh token in [RefreshTokenHeader] and
// responds with the next token pair.
func RefreshHandler(engine *goSession.Engine) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		token := r.Header.Get(RefreshTokenHeader)
		if engine == nil || token == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		bundle, err := engine.RefreshSession(r.Context(), token)
		if err != nil {
			WriteError(w, err)
			return
		}
		WriteBundle(w, http.StatusOK, bundle)
	})
}
