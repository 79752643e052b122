package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/middleware"
	promexport "github.com/MrEthical07/goSession/metrics/export/prometheus"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const requestIDHeader = "X-Request-Id"

func routes(engine *goSession.Engine, exporter *promexport.PrometheusExporter, health http.HandlerFunc) http.Handler {
	guard := middleware.RequireSession(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /sessions", createSessionHandler(engine))
	mux.Handle("POST /sessions/refresh", middleware.RefreshHandler(engine))
	mux.Handle("GET /sessions/current", guard(http.HandlerFunc(currentSessionHandler)))
	mux.Handle("DELETE /sessions/current", guard(revokeCurrentHandler(engine)))
	mux.HandleFunc("DELETE /users/{id}/sessions", revokeUserHandler(engine))
	mux.HandleFunc("GET /handshake", handshakeHandler(engine))
	mux.Handle("GET /metrics", exporter.Handler())
	mux.HandleFunc("GET /healthz", health)
	return mux
}

// withRequestID propagates X-Request-Id, generating one when absent, so
// engine logs and audit events can be correlated with the request.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(goSession.WithRequestID(r.Context(), id)))
	})
}

type createSessionRequest struct {
	UserID      string          `json:"user_id"`
	JWTPayload  json.RawMessage `json:"jwt_payload"`
	SessionData json.RawMessage `json:"session_data"`
	AntiCSRF    bool            `json:"anti_csrf"`
}

func createSessionHandler(engine *goSession.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		bundle, err := engine.CreateSession(r.Context(), req.UserID, req.JWTPayload, req.SessionData, req.AntiCSRF)
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		middleware.WriteBundle(w, http.StatusCreated, bundle)
	}
}

func currentSessionHandler(w http.ResponseWriter, r *http.Request) {
	s, _ := middleware.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"handle":      s.Handle,
		"user_id":     s.UserID,
		"jwt_payload": s.JWTPayload,
		"expires_at":  s.ExpiresAt.Unix(),
	})
}

func revokeCurrentHandler(engine *goSession.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, _ := middleware.SessionFromContext(r.Context())
		if _, err := engine.RevokeSessions(r.Context(), s.Handle); err != nil {
			middleware.WriteError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func revokeUserHandler(engine *goSession.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := engine.RevokeAllSessionsForUser(r.Context(), r.PathValue("id"))
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"revoked": n})
	}
}

func handshakeHandler(engine *goSession.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := engine.Handshake(r.Context())
		if err != nil {
			middleware.WriteError(w, err)
			return
		}
		out := map[string]any{
			"access_key_id":     info.AccessKeyID,
			"algorithm":         info.Algorithm,
			"access_token_ttl":  int64(info.AccessTokenTTL / time.Second),
			"refresh_token_ttl": int64(info.RefreshTokenTTL / time.Second),
			"anti_csrf":         info.AntiCSRF,
			"blacklisting":      info.Blacklisting,
		}
		if info.PublicKeyPEM != "" {
			out["public_key_pem"] = info.PublicKeyPEM
		}
		if !info.AccessKeyExpiresAt.IsZero() {
			out["access_key_expires_at"] = info.AccessKeyExpiresAt.Unix()
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// healthCheck pings whichever backends are configured.
func healthCheck(rdb *redis.Client, pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if rdb != nil {
			if err := rdb.Ping(ctx).Err(); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		if pool != nil {
			if err := pool.Ping(ctx); err != nil {
				http.Error(w, "postgres unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
