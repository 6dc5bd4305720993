package middleware

import (
	"bytes"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/pkg/jwt"
)

const secret = "middleware-test-secret"

func token(t *testing.T, clientID string, role domain.Role) string {
	t.Helper()
	tok, err := jwt.GenerateToken(clientID, string(role), time.Hour, secret)
	require.NoError(t, err)
	return tok
}

func echoIdentity() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetClientID(r) + "/" + string(GetRole(r))))
	})
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized},
		{name: "bad token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + token(t, "shopify", domain.RoleConnector), wantStatus: http.StatusOK, wantBody: "shopify/connector"},
		{name: "lowercase scheme", header: "bearer " + token(t, "ops", domain.RoleOperator), wantStatus: http.StatusOK, wantBody: "ops/operator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			AuthMiddleware(secret)(echoIdentity()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := AuthMiddleware(secret)(RequireRole(domain.RoleOperator)(echoIdentity()))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "shopify", domain.RoleConnector))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "ops", domain.RoleOperator))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoggerMiddleware_LogsAuthenticatedClient(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h := LoggerMiddleware()(AuthMiddleware(secret)(echoIdentity()))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", nil)
	req.Header.Set("Authorization", "Bearer "+token(t, "magento", domain.RoleConnector))
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Contains(t, buf.String(), "POST /api/v1/events - Status: 200")
	assert.Contains(t, buf.String(), "Client: magento")

	buf.Reset()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Contains(t, buf.String(), "Status: 401")
	assert.Contains(t, buf.String(), "Client: anonymous")
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware("https://ops.example.com", "GET,POST", "Authorization")(echoIdentity())

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", tok)

	_, ok = BearerToken("abc")
	assert.False(t, ok)
}
