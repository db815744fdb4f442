package storage

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	apperrors "requestportal/internal/errors"
)

// DefaultMaxBytes is the upload size ceiling.
const DefaultMaxBytes int64 = 5 * 1024 * 1024

// allowedTypes maps each accepted extension to the MIME types its content may
// sniff as. The first entry is the declared type. Office formats sniff as their
// container (zip or OLE) when the detector cannot see further.
var allowedTypes = map[string][]string{
	".pdf":  {"application/pdf"},
	".doc":  {"application/msword", "application/x-ole-storage"},
	".docx": {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip"},
	".txt":  {"text/plain"},
	".xls":  {"application/vnd.ms-excel", "application/x-ole-storage"},
	".xlsx": {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "application/zip"},
	".ppt":  {"application/vnd.ms-powerpoint", "application/x-ole-storage"},
	".pptx": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", "application/zip"},
	".jpg":  {"image/jpeg"},
	".jpeg": {"image/jpeg"},
	".png":  {"image/png"},
	".gif":  {"image/gif"},
	".csv":  {"text/csv", "text/plain"},
	".zip":  {"application/zip"},
}

// Validate checks name, size and content against the allow-list and returns the
// declared MIME type for the file.
func Validate(name string, size, maxBytes int64, content []byte) (string, error) {
	if size <= 0 || len(content) == 0 {
		return "", apperrors.ErrFileRequired
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if size > maxBytes || int64(len(content)) > maxBytes {
		return "", apperrors.ErrFileTooLarge
	}

	ext := strings.ToLower(filepath.Ext(name))
	accepted, ok := allowedTypes[ext]
	if !ok {
		return "", apperrors.ErrFileTypeNotAllowed
	}

	for m := mimetype.Detect(content); m != nil; m = m.Parent() {
		for _, want := range accepted {
			if m.Is(want) {
				return accepted[0], nil
			}
		}
	}
	return "", apperrors.ErrFileTypeNotAllowed
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9.]`)

// StoredName builds a collision-resistant file name from the client's name.
func StoredName(original string, now time.Time) string {
	base := unsafeChars.ReplaceAllString(filepath.Base(original), "_")
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], base)
}
