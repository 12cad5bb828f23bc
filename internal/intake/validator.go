// Package intake checks raw submission payloads and derives safe storage names.
package intake

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// DefaultMaxBytes is the upload ceiling used when none is configured.
const DefaultMaxBytes int64 = 16 * 1024 * 1024

// Kind classifies a rejected submission.
type Kind string

const (
	KindUnsupportedFileType Kind = "unsupported_file_type"
	KindFileTooLarge        Kind = "file_too_large"
	KindEmptySubmission     Kind = "empty_submission"
)

var (
	// ErrUnsupportedFileType indicates the extension is outside the allow-list.
	ErrUnsupportedFileType = errors.New("file type not allowed")
	// ErrFileTooLarge indicates the upload exceeded the configured ceiling.
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrEmptySubmission indicates neither a file nor text was provided.
	ErrEmptySubmission = errors.New("submission requires a file or text content")
)

// ValidationError is returned for user-correctable intake failures.
type ValidationError struct {
	Kind   Kind
	Detail string
}

func (e *ValidationError) Error() string {
	base := e.sentinel().Error()
	if e.Detail == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, e.Detail)
}

// Unwrap exposes the sentinel matching the kind so callers can use errors.Is.
func (e *ValidationError) Unwrap() error {
	return e.sentinel()
}

func (e *ValidationError) sentinel() error {
	switch e.Kind {
	case KindUnsupportedFileType:
		return ErrUnsupportedFileType
	case KindFileTooLarge:
		return ErrFileTooLarge
	default:
		return ErrEmptySubmission
	}
}

// AllowedExtensions is the upload allow-list, lower case without the dot.
var AllowedExtensions = []string{"pdf", "doc", "docx", "txt", "png", "jpg", "jpeg"}

var textBearing = map[string]struct{}{
	"pdf":  {},
	"doc":  {},
	"docx": {},
	"txt":  {},
}

// TextBearing reports whether text can be extracted from files with the extension.
func TextBearing(ext string) bool {
	_, ok := textBearing[normalizeExt(ext)]
	return ok
}

// Upload is the raw intake payload. An empty Filename means no file was sent.
type Upload struct {
	Filename string
	Size     int64
	Text     string
}

// Accepted carries the normalised result of a successful validation.
type Accepted struct {
	HasFile       bool
	OriginalName  string
	SanitizedName string
	StorageName   string
	Ext           string
	Size          int64
	Text          string
}

// Validator enforces the upload allow-list and size ceiling.
type Validator struct {
	maxBytes int64
	allowed  map[string]struct{}
}

// NewValidator builds a validator with the given ceiling in bytes.
func NewValidator(maxBytes int64) *Validator {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	allowed := make(map[string]struct{}, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		allowed[ext] = struct{}{}
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed}
}

// MaxBytes returns the configured ceiling.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Validate checks the payload and composes the storage name from the
// assignment id, the registration number and the sanitized filename.
func (v *Validator) Validate(assignmentID uint, regNo string, upload Upload) (Accepted, error) {
	text := upload.Text
	if strings.TrimSpace(text) == "" {
		text = ""
	}

	original := strings.TrimSpace(upload.Filename)
	if original == "" {
		if text == "" {
			return Accepted{}, &ValidationError{Kind: KindEmptySubmission}
		}
		return Accepted{Text: text}, nil
	}

	ext := normalizeExt(filepath.Ext(original))
	if _, ok := v.allowed[ext]; !ok || ext == "" {
		return Accepted{}, &ValidationError{Kind: KindUnsupportedFileType, Detail: fmt.Sprintf("allowed types are %s", strings.Join(AllowedExtensions, ", "))}
	}

	if err := v.CheckSize(upload.Size); err != nil {
		return Accepted{}, err
	}

	sanitized := SanitizeFilename(original)
	storageName := StorageName(assignmentID, regNo, sanitized)

	return Accepted{
		HasFile:       true,
		OriginalName:  original,
		SanitizedName: sanitized,
		StorageName:   storageName,
		Ext:           normalizeExt(filepath.Ext(storageName)),
		Size:          upload.Size,
		Text:          text,
	}, nil
}

// CheckSize rejects payloads above the ceiling.
func (v *Validator) CheckSize(size int64) error {
	if size > v.maxBytes {
		return &ValidationError{Kind: KindFileTooLarge, Detail: fmt.Sprintf("limit is %d MiB", v.maxBytes/(1024*1024))}
	}
	return nil
}

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename keeps only [A-Za-z0-9._-] and prefixes "file_" when the
// result is empty or hidden.
func SanitizeFilename(name string) string {
	cleaned := unsafeFilenameChars.ReplaceAllString(name, "")
	if cleaned == "" || strings.HasPrefix(cleaned, ".") {
		cleaned = "file_" + cleaned
	}
	return cleaned
}

// SecureName reduces a string to a portable ASCII filename: compatibility
// decomposition, non-ASCII dropped, separators and whitespace folded to "_",
// leading and trailing dots and underscores trimmed.
func SecureName(name string) string {
	decomposed := norm.NFKD.String(name)

	var ascii strings.Builder
	ascii.Grow(len(decomposed))
	for _, r := range decomposed {
		if r > unicode.MaxASCII {
			continue
		}
		if r == '/' || r == '\\' {
			r = ' '
		}
		ascii.WriteRune(r)
	}

	joined := strings.Join(strings.Fields(ascii.String()), "_")
	return strings.Trim(unsafeFilenameChars.ReplaceAllString(joined, ""), "._")
}

// StorageName composes the deterministic object name for an upload.
func StorageName(assignmentID uint, regNo, sanitized string) string {
	return SecureName(fmt.Sprintf("%d_%s_%s", assignmentID, regNo, sanitized))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}
