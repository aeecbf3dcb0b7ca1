package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		apiKey    string
		headers   map[string]string
		wantCode  int
		wantError string
	}{
		{name: "disabled", apiKey: "", wantCode: http.StatusOK},
		{name: "missing", apiKey: "secret", wantCode: http.StatusUnauthorized, wantError: "authorization required"},
		{name: "wrong bearer", apiKey: "secret", headers: map[string]string{"Authorization": "Bearer wrong-token"}, wantCode: http.StatusUnauthorized, wantError: "invalid token"},
		{name: "bearer", apiKey: "secret", headers: map[string]string{"Authorization": "Bearer secret"}, wantCode: http.StatusOK},
		{name: "lowercase scheme", apiKey: "secret", headers: map[string]string{"Authorization": "bearer secret"}, wantCode: http.StatusOK},
		{name: "basic rejected", apiKey: "secret", headers: map[string]string{"Authorization": "Basic dXNlcjpwYXNz"}, wantCode: http.StatusUnauthorized},
		{name: "api key header", apiKey: "secret", headers: map[string]string{apiKeyHeader: "secret"}, wantCode: http.StatusOK},
		{name: "wrong api key header", apiKey: "secret", headers: map[string]string{apiKeyHeader: "nope"}, wantCode: http.StatusUnauthorized, wantError: "invalid token"},
		{
			name:     "authorization wins over api key header",
			apiKey:   "secret",
			headers:  map[string]string{"Authorization": "Bearer wrong", apiKeyHeader: "secret"},
			wantCode: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := authMiddleware(tt.apiKey, okHandler)
			req := httptest.NewRequest(http.MethodGet, "/api/documents", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			if w.Code == http.StatusUnauthorized {
				if w.Header().Get("WWW-Authenticate") == "" {
					t.Error("expected WWW-Authenticate header on 401")
				}
				if ct := w.Header().Get("Content-Type"); ct != "application/json" {
					t.Errorf("401 Content-Type: got %q", ct)
				}
			}
			if tt.wantError != "" && !strings.Contains(w.Body.String(), tt.wantError) {
				t.Errorf("body %q does not mention %q", w.Body.String(), tt.wantError)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"Bearer mytoken", "mytoken"},
		{"bearer mytoken", "mytoken"},
		{"BEARER mytoken", "mytoken"},
		{"Bearer  spaced ", "spaced"},
		{"Basic dXNlcjpwYXNz", ""},
		{"", ""},
		{"Bearer", ""},
		{"token only", ""},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		if got := bearerToken(req); got != tc.want {
			t.Errorf("header=%q: expected %q, got %q", tc.header, tc.want, got)
		}
	}
}
