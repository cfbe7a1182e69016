package httpapi_test

import (
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cronus42/homeassistant-ollama-agent/internal/httpapi"
)

func signToken(t *testing.T, key *rsa.PrivateKey, role string, expiresIn time.Duration) string {
	t.Helper()
	claims := httpapi.Claims{
		Role: role,
		Name: "Test User",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTAuthMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	var gotClaims *httpapi.Claims
	handler := httpapi.JWTAuthMiddleware(&key.PublicKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClaims = httpapi.GetClaims(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		token      string
		cookie     bool
		wantStatus int
		wantRole   string
	}{
		{
			name:       "valid bearer token",
			token:      signToken(t, key, "user", time.Hour),
			wantStatus: http.StatusOK,
			wantRole:   "user",
		},
		{
			name:       "valid cookie token",
			token:      signToken(t, key, "admin", time.Hour),
			cookie:     true,
			wantStatus: http.StatusOK,
			wantRole:   "admin",
		},
		{
			name:       "missing token",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			token:      signToken(t, key, "user", -time.Hour),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			token:      "not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotClaims = nil
			req := httptest.NewRequest("GET", "/api/assistant/entities", nil)
			if tt.token != "" {
				if tt.cookie {
					req.AddCookie(&http.Cookie{Name: "auth_token", Value: tt.token})
				} else {
					req.Header.Set("Authorization", "Bearer "+tt.token)
				}
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK {
				if gotClaims == nil || gotClaims.Role != tt.wantRole {
					t.Errorf("claims = %+v, want role %q", gotClaims, tt.wantRole)
				}
			}
		})
	}
}

func TestRequireRoleMiddleware(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	handler := httpapi.JWTAuthMiddleware(&key.PublicKey)(
		httpapi.RequireRoleMiddleware("admin")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	tests := []struct {
		name       string
		role       string
		wantStatus int
	}{
		{name: "admin allowed", role: "admin", wantStatus: http.StatusOK},
		{name: "user forbidden", role: "user", wantStatus: http.StatusForbidden},
		{name: "unknown role forbidden", role: "guest", wantStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/assistant/admin/status", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, key, tt.role, time.Hour))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
