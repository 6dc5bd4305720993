package jwt

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		clientID   string
		role       string
		expiration time.Duration
		secret     string
	}{
		{
			name:       "connector token",
			clientID:   "shopify",
			role:       "connector",
			expiration: 15 * time.Minute,
			secret:     "test-secret-key-32-characters!",
		},
		{
			name:       "short expiration",
			clientID:   "magento",
			role:       "connector",
			expiration: 1 * time.Second,
			secret:     "test-secret",
		},
		{
			name:       "operator token",
			clientID:   "ops-console",
			role:       "operator",
			expiration: 24 * time.Hour,
			secret:     "test-secret",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.clientID, tt.role, tt.expiration, tt.secret)
			if err != nil {
				t.Fatalf("GenerateToken() error = %v", err)
			}

			if token == "" {
				t.Error("GenerateToken() returned empty token")
			}

			if len(token) < 100 {
				t.Errorf("GenerateToken() token too short, len = %d", len(token))
			}
		})
	}
}

func TestValidateToken(t *testing.T) {
	clientID := "woocommerce"
	secret := "validation-secret-key-32-chars"

	validToken, _ := GenerateToken(clientID, "connector", 1*time.Hour, secret)
	expiredToken, _ := GenerateToken(clientID, "connector", -1*time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr bool
	}{
		{name: "valid token", token: validToken, secret: secret},
		{name: "expired token", token: expiredToken, secret: secret, wantErr: true},
		{name: "wrong secret", token: validToken, secret: "wrong-secret", wantErr: true},
		{name: "invalid token format", token: "invalid.token.format", secret: secret, wantErr: true},
		{name: "empty token", token: "", secret: secret, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)

			if tt.wantErr {
				if err == nil {
					t.Error("ValidateToken() expected error but got none")
				} else if !errors.Is(err, ErrInvalidToken) {
					t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}
			if claims.ClientID != clientID || claims.Subject != clientID {
				t.Errorf("ValidateToken() client = %v/%v, want %v", claims.ClientID, claims.Subject, clientID)
			}
			if claims.Role != "connector" {
				t.Errorf("ValidateToken() role = %v, want connector", claims.Role)
			}
		})
	}
}

func TestClaimsTimestamps(t *testing.T) {
	secret := "timestamp-test-secret"
	expiration := 1 * time.Hour

	before := time.Now().Add(-1 * time.Second)
	token, err := GenerateToken("custom", "operator", expiration, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(1 * time.Second)

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	issuedAt := claims.IssuedAt.Time
	if issuedAt.Before(before) || issuedAt.After(after) {
		t.Errorf("IssuedAt timestamp out of expected range: got %v, range [%v, %v]",
			issuedAt, before, after)
	}

	expiresAt := claims.ExpiresAt.Time
	if expiresAt.Before(before.Add(expiration)) || expiresAt.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt timestamp out of expected range: got %v", expiresAt)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	secret := "benchmark-secret-key"
	token, _ := GenerateToken("benchmark", "connector", 15*time.Minute, secret)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, secret); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
