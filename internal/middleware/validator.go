package middleware

import (
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Input validation and sanitization utilities

var ownerPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

const maxFileRef = 1024

// ValidateOwnerID validates owner ID format
func ValidateOwnerID(owner string) error {
	if owner == "" {
		return fmt.Errorf("owner ID cannot be empty")
	}
	if !ownerPattern.MatchString(owner) {
		return fmt.Errorf("invalid owner ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateJobID accepts the UUIDs Submit hands out.
func ValidateJobID(id string) error {
	if id == "" {
		return fmt.Errorf("job ID cannot be empty")
	}
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("invalid job ID format")
	}
	return nil
}

// ValidateFileRef checks an object key in document storage.
func ValidateFileRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("file_ref is required")
	}
	if len(ref) > maxFileRef {
		return fmt.Errorf("file_ref longer than %d bytes", maxFileRef)
	}
	if strings.HasPrefix(ref, "/") {
		return fmt.Errorf("file_ref must be relative to the bucket")
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return fmt.Errorf("path traversal detected")
		}
	}
	if path.Clean(ref) != ref {
		return fmt.Errorf("file_ref is not a clean object key")
	}
	if SanitizeString(ref) != ref || strings.ContainsAny(ref, "\t\n") {
		return fmt.Errorf("invalid characters in file_ref")
	}
	return nil
}

// ValidateFileName wants a bare name with an extension; the extension picks
// the extractor.
func ValidateFileName(name string) error {
	if name == "" {
		return fmt.Errorf("file_name is required")
	}
	if strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("file_name must not contain a path")
	}
	if SanitizeString(name) != name {
		return fmt.Errorf("invalid characters in file_name")
	}
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return fmt.Errorf("file_name needs an extension")
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}
	return strings.TrimSpace(result.String())
}

// ValidatePage validates the page number
func ValidatePage(page int) int {
	if page <= 0 {
		return 1
	}
	return page
}

// ValidatePageSize validates pagination size
func ValidatePageSize(size int) int {
	if size <= 0 {
		return 20 // default
	}
	if size > 100 {
		return 100 // max limit
	}
	return size
}
