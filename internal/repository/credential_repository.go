package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-kivik/kivik/v4"

	"commerce-sync-engine/internal/domain"
)

type CredentialRepository interface {
	Create(ctx context.Context, cred *domain.Credential) error
	FindByClientID(ctx context.Context, clientID string) (*domain.Credential, error)
}

type credentialDoc struct {
	ID      string `json:"_id"`
	DocRev  string `json:"_rev,omitempty"`
	DocType string `json:"doc_type"`
	*domain.Credential
}

type credentialRepository struct {
	client *kivik.Client
	dbName string
}

func NewCredentialRepository(client *kivik.Client, dbName string) CredentialRepository {
	return &credentialRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *credentialRepository) Create(ctx context.Context, cred *domain.Credential) error {
	db := r.client.DB(r.dbName)

	doc := credentialDoc{ID: fmt.Sprintf("credential:%s", cred.ClientID), DocType: docTypeCredential, Credential: cred}
	rev, err := db.Put(ctx, doc.ID, doc)
	if err != nil {
		if err = translate(err); errors.Is(err, ErrConflict) {
			return ErrExists
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	cred.Rev = rev
	return nil
}

func (r *credentialRepository) FindByClientID(ctx context.Context, clientID string) (*domain.Credential, error) {
	db := r.client.DB(r.dbName)

	doc := credentialDoc{Credential: &domain.Credential{}}
	if err := db.Get(ctx, fmt.Sprintf("credential:%s", clientID)).ScanDoc(&doc); err != nil {
		if err = translate(err); errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	doc.Credential.Rev = doc.DocRev
	return doc.Credential, nil
}
