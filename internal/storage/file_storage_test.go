package storage

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00, 0x00, 0x00, 0x0D}

func newTestStorage(t *testing.T) *FileStorage {
	t.Helper()
	s, err := NewFileStorage(t.TempDir(), 1)
	require.NoError(t, err)
	return s
}

func TestFileStorage_SaveAndOpen(t *testing.T) {
	s := newTestStorage(t)
	owner := uuid.New()

	stored, err := s.Save(context.Background(), PurposeDelivery, owner, "result.png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", stored.MIME)
	assert.Equal(t, int64(len(pngHeader)), stored.Size)
	assert.Equal(t, filepath.ToSlash(filepath.Join("deliveries", owner.String())), filepath.ToSlash(filepath.Dir(stored.Path)))

	f, err := s.Open(stored.Path)
	require.NoError(t, err)
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, s.Delete(context.Background(), stored.Path))
	_, err = s.Open(stored.Path)
	assert.Error(t, err)
}

func TestFileStorage_PlainText(t *testing.T) {
	s := newTestStorage(t)

	stored, err := s.Save(context.Background(), PurposeRequirements, uuid.New(), "brief.md", bytes.NewReader([]byte("# Brief\nthree pages")))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", stored.MIME)

	_, err = s.Save(context.Background(), PurposeRequirements, uuid.New(), "brief.bin", bytes.NewReader([]byte("# Brief")))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestFileStorage_Rejects(t *testing.T) {
	s := newTestStorage(t)
	owner := uuid.New()

	_, err := s.Save(context.Background(), PurposeDelivery, owner, "empty.png", bytes.NewReader(nil))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = s.Save(context.Background(), PurposeDelivery, owner, "image.pdf", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrTypeMismatch)

	_, err = s.Save(context.Background(), Purpose("avatars"), owner, "image.png", bytes.NewReader(pngHeader))
	assert.ErrorIs(t, err, ErrUnknownPurpose)

	big := append(append([]byte{}, pngHeader...), make([]byte, 2*1024*1024)...)
	_, err = s.Save(context.Background(), PurposeDelivery, owner, "big.png", bytes.NewReader(big))
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestFileStorage_PathTraversal(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Open("../../etc/passwd")
	assert.Error(t, err)
	assert.Error(t, s.Delete(context.Background(), "../outside"))
}

func TestAllowedExtensions(t *testing.T) {
	exts := AllowedExtensions(PurposeDelivery)
	assert.Contains(t, exts, ".pdf")
	assert.Contains(t, exts, ".png")
	assert.Contains(t, exts, ".txt")
	assert.Nil(t, AllowedExtensions(Purpose("unknown")))
}

func TestParsePurpose(t *testing.T) {
	p, err := ParsePurpose("delivery")
	require.NoError(t, err)
	assert.Equal(t, PurposeDelivery, p)

	p, err = ParsePurpose("message")
	require.NoError(t, err)
	assert.Equal(t, PurposeMessage, p)

	_, err = ParsePurpose("avatar")
	assert.ErrorIs(t, err, ErrUnknownPurpose)
}
