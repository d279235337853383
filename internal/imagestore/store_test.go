package imagestore

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wastesort/internal/repository"
)

type memoryRepository struct {
	images  map[string]*repository.StoredImage
	saveErr error
}

func (m *memoryRepository) SaveImage(ctx context.Context, image *repository.StoredImage) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	if m.images == nil {
		m.images = map[string]*repository.StoredImage{}
	}
	m.images[image.ImageID] = image
	return nil
}

func (m *memoryRepository) FindImage(ctx context.Context, imageID string) (*repository.StoredImage, error) {
	if image, ok := m.images[imageID]; ok {
		return image, nil
	}
	return nil, repository.ErrNotFound
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n0000")

func TestUploadReturnsResolvableURL(t *testing.T) {
	repo := &memoryRepository{}
	store := New(repo, "https://scans.example.com/")

	url, err := store.Upload(context.Background(), pngHeader)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "https://scans.example.com/images/"))

	id := strings.TrimPrefix(url, "https://scans.example.com/images/")
	image, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "image/png", image.ContentType)
	assert.Equal(t, pngHeader, image.Data)
}

func TestUploadRejectsEmpty(t *testing.T) {
	store := New(&memoryRepository{}, "")
	_, err := store.Upload(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyImage)
}

func TestUploadPropagatesRepositoryError(t *testing.T) {
	boom := errors.New("disk full")
	store := New(&memoryRepository{saveErr: boom}, "")
	_, err := store.Upload(context.Background(), pngHeader)
	assert.ErrorIs(t, err, boom)
}

func TestDecodeDataURI(t *testing.T) {
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader)

	data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)
}

func TestDecodeDataURIErrors(t *testing.T) {
	for _, uri := range []string{
		"image/png;base64,AAAA",
		"data:image/png,AAAA",
		"data:image/png;base64",
		"data:image/png;base64,!!!",
	} {
		_, err := DecodeDataURI(uri)
		assert.ErrorIs(t, err, ErrInvalidDataURI, uri)
	}
	_, err := DecodeDataURI("data:image/png;base64,")
	assert.ErrorIs(t, err, ErrEmptyImage)
}
