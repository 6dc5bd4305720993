package domain

import "time"

type Role string

const (
	RoleConnector Role = "connector"
	RoleOperator  Role = "operator"
)

// Credential is an API key registration for a connector or an operator.
type Credential struct {
	ClientID  string    `json:"client_id"`
	Role      Role      `json:"role"`
	KeyHash   string    `json:"key_hash"`
	CreatedAt time.Time `json:"created_at"`
	Revoked   bool      `json:"revoked"`

	Rev string `json:"-"`
}

type TokenRequest struct {
	ClientID string `json:"client_id" validate:"required"`
	APIKey   string `json:"api_key" validate:"required,min=8"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}
