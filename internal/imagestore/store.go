// Package imagestore keeps captured scan images and hands back the URL the
// rest of the system stores as an opaque image reference.
package imagestore

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/wastesort/internal/repository"
)

var (
	// ErrEmptyImage is returned for zero-length uploads.
	ErrEmptyImage = errors.New("image is empty")
	// ErrInvalidDataURI is returned when a data URI cannot be decoded.
	ErrInvalidDataURI = errors.New("invalid image data uri")
)

// Repository is the persistence the store writes images to.
type Repository interface {
	SaveImage(ctx context.Context, image *repository.StoredImage) error
	FindImage(ctx context.Context, imageID string) (*repository.StoredImage, error)
}

// Store uploads images and resolves them again by id.
type Store struct {
	repo    Repository
	baseURL string
	now     func() time.Time
}

// New builds a store that publishes images under baseURL + "/images/<id>".
func New(repo Repository, baseURL string) *Store {
	return &Store{
		repo:    repo,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// Upload stores raw image bytes and returns their public URL.
func (s *Store) Upload(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	image := &repository.StoredImage{
		ImageID:     uuid.NewString(),
		ContentType: http.DetectContentType(data),
		Data:        data,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.SaveImage(ctx, image); err != nil {
		return "", err
	}
	return s.URL(image.ImageID), nil
}

// Get loads a stored image by id.
func (s *Store) Get(ctx context.Context, imageID string) (*repository.StoredImage, error) {
	return s.repo.FindImage(ctx, imageID)
}

// URL returns the public locator for an image id.
func (s *Store) URL(imageID string) string {
	return s.baseURL + "/images/" + imageID
}

// DecodeDataURI extracts the payload of a base64 "data:" URI, as produced by
// browser canvases.
func DecodeDataURI(uri string) ([]byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil, ErrInvalidDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, errors.Join(ErrInvalidDataURI, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	return data, nil
}
