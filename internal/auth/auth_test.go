package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		cfg    Config
		method string
		path   string
		header string
		want   int
	}{
		{"disabled", Config{}, http.MethodPost, "/api/v1/user-satellites", "", http.StatusNoContent},
		{"missing token", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "", http.StatusUnauthorized},
		{"wrong token", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "Bearer nope", http.StatusUnauthorized},
		{"wrong scheme", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "Basic s3cret", http.StatusUnauthorized},
		{"bare token", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "s3cret", http.StatusUnauthorized},
		{"empty bearer", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "Bearer ", http.StatusUnauthorized},
		{"valid token", Config{Enabled: true, Token: "s3cret"}, http.MethodPost, "/api/v1/user-satellites", "Bearer s3cret", http.StatusNoContent},
		{"scheme is case insensitive", Config{Enabled: true, Token: "s3cret"}, http.MethodDelete, "/api/v1/user-satellites", "bearer s3cret", http.StatusNoContent},
		{"health exempt", Config{Enabled: true, Token: "s3cret"}, http.MethodGet, "/healthz", "", http.StatusNoContent},
		{"metrics exempt", Config{Enabled: true, Token: "s3cret"}, http.MethodGet, "/metrics", "", http.StatusNoContent},
		{"read needs token", Config{Enabled: true, Token: "s3cret"}, http.MethodGet, "/api/v1/collisions", "", http.StatusUnauthorized},
		{"public read", Config{Enabled: true, Token: "s3cret", PublicReads: true}, http.MethodGet, "/api/v1/collisions", "", http.StatusNoContent},
		{"public reads still guard writes", Config{Enabled: true, Token: "s3cret", PublicReads: true}, http.MethodPost, "/api/v1/satellites/fetch", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			Middleware(tt.cfg)(ok).ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if w.Code == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 without WWW-Authenticate header")
			}
		})
	}
}
