package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "requestportal/internal/errors"
)

var (
	pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")
	pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
	txtBytes = []byte("Semester transcript request notes\n")
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		size     int64
		content  []byte
		wantType string
		wantErr  error
	}{
		{"png", "photo.PNG", int64(len(pngBytes)), pngBytes, "image/png", nil},
		{"pdf", "form.pdf", int64(len(pdfBytes)), pdfBytes, "application/pdf", nil},
		{"txt", "notes.txt", int64(len(txtBytes)), txtBytes, "text/plain", nil},
		{"csv as plain text", "marks.csv", int64(len(txtBytes)), txtBytes, "text/csv", nil},
		{"disallowed extension", "script.exe", int64(len(txtBytes)), txtBytes, "", apperrors.ErrFileTypeNotAllowed},
		{"no extension", "README", int64(len(txtBytes)), txtBytes, "", apperrors.ErrFileTypeNotAllowed},
		{"content contradicts extension", "form.pdf", int64(len(txtBytes)), txtBytes, "", apperrors.ErrFileTypeNotAllowed},
		{"image disguised as text", "notes.txt", int64(len(pngBytes)), pngBytes, "", apperrors.ErrFileTypeNotAllowed},
		{"too large", "form.pdf", DefaultMaxBytes + 1, pdfBytes, "", apperrors.ErrFileTooLarge},
		{"empty", "form.pdf", 0, nil, "", apperrors.ErrFileRequired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Validate(tt.file, tt.size, DefaultMaxBytes, tt.content)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, got)
		})
	}
}

func TestValidate_ExactlyAtCeiling(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 1024)
	_, err := Validate("notes.txt", 1024, 1024, content)
	assert.NoError(t, err)

	_, err = Validate("notes.txt", 1025, 1024, append(content, 'a'))
	assert.ErrorIs(t, err, apperrors.ErrFileTooLarge)
}

func TestStoredName(t *testing.T) {
	now := time.UnixMilli(1767225600000)
	name := StoredName("../My Report (final).pdf", now)

	assert.True(t, strings.HasPrefix(name, "1767225600000-"))
	assert.True(t, strings.HasSuffix(name, "-My_Report__final_.pdf"))
	assert.NotContains(t, name, "/")
	assert.NotEqual(t, name, StoredName("../My Report (final).pdf", now))
}

func TestDiskStorage_Save(t *testing.T) {
	dir := t.TempDir()
	uploadDir := filepath.Join(dir, "uploads")
	s, err := NewDiskStorage(uploadDir)
	require.NoError(t, err)

	path, err := s.Save(context.Background(), "123-abc-notes.txt", "text/plain", bytes.NewReader(txtBytes))
	require.NoError(t, err)
	assert.Equal(t, "/uploads/123-abc-notes.txt", path)

	written, err := os.ReadFile(filepath.Join(uploadDir, "123-abc-notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, txtBytes, written)

	_, err = s.Save(context.Background(), "123-abc-notes.txt", "text/plain", bytes.NewReader(txtBytes))
	assert.Error(t, err, "existing files are never overwritten")
}

func TestAllowedTypes(t *testing.T) {
	assert.Len(t, allowedTypes, 14)
}
