package repository

import (
	"errors"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

var (
	ErrNotFound = errors.New("document not found")
	ErrConflict = errors.New("document update conflict")
	ErrExists   = errors.New("document already exists")
)

const (
	docTypeRecord     = "record"
	docTypeReview     = "review"
	docTypeDeadLetter = "dead_letter"
	docTypeCredential = "credential"
)

// translate maps CouchDB status codes onto the package sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	switch kivik.HTTPStatus(err) {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	}
	return err
}
