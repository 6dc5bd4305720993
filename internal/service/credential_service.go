package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"commerce-sync-engine/internal/domain"
	"commerce-sync-engine/internal/repository"
	"commerce-sync-engine/pkg/hash"
	"commerce-sync-engine/pkg/jwt"
)

type CredentialService struct {
	repo          repository.CredentialRepository
	jwtSecret     string
	jwtExpiration time.Duration
}

func NewCredentialService(repo repository.CredentialRepository, jwtSecret string, jwtExp time.Duration) *CredentialService {
	return &CredentialService{
		repo:          repo,
		jwtSecret:     jwtSecret,
		jwtExpiration: jwtExp,
	}
}

// Create registers clientID and returns the plaintext API key. The key is
// not stored and cannot be recovered.
func (s *CredentialService) Create(ctx context.Context, clientID string, role domain.Role) (*domain.Credential, string, error) {
	if clientID == "" {
		return nil, "", fmt.Errorf("client id is required")
	}
	if role != domain.RoleConnector && role != domain.RoleOperator {
		return nil, "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	apiKey, err := hash.GenerateKey()
	if err != nil {
		return nil, "", err
	}
	keyHash, err := hash.Hash(apiKey)
	if err != nil {
		return nil, "", err
	}

	cred := &domain.Credential{
		ClientID:  clientID,
		Role:      role,
		KeyHash:   keyHash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, cred); err != nil {
		return nil, "", fmt.Errorf("failed to create credential: %w", err)
	}
	return cred, apiKey, nil
}

func (s *CredentialService) IssueToken(ctx context.Context, req *domain.TokenRequest) (*domain.TokenResponse, error) {
	cred, err := s.repo.FindByClientID(ctx, req.ClientID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to load credential: %w", err)
	}
	if cred.Revoked {
		return nil, ErrInvalidCredentials
	}
	if err := hash.Compare(cred.KeyHash, req.APIKey); err != nil {
		return nil, ErrInvalidCredentials
	}

	token, err := jwt.GenerateToken(cred.ClientID, string(cred.Role), s.jwtExpiration, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   time.Now().Add(s.jwtExpiration).UTC(),
	}, nil
}

func (s *CredentialService) ValidateToken(token string) (*jwt.Claims, error) {
	claims, err := jwt.ValidateToken(token, s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return claims, nil
}
