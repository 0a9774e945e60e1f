package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/HugeFrog24/gpt-video-translator/internal/services"
)

const stage = "validate"

// Upload is one user-supplied media file. Body is read once by Save.
type Upload struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Validator checks uploads against an extension allow-list and a size bound.
type Validator struct {
	maxBytes int64
	allowed  map[string]struct{}
}

// NewValidator builds a Validator. Extensions are matched case-insensitively
// and may be given with or without a leading dot.
func NewValidator(maxBytes int64, extensions []string) *Validator {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			allowed[ext] = struct{}{}
		}
	}
	return &Validator{maxBytes: maxBytes, allowed: allowed}
}

// MaxBytes returns the configured size bound.
func (v *Validator) MaxBytes() int64 {
	return v.maxBytes
}

// Extensions returns the allowed extensions in sorted order.
func (v *Validator) Extensions() []string {
	exts := make([]string, 0, len(v.allowed))
	for ext := range v.allowed {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Validate rejects uploads with a disallowed extension or a size above the bound.
func (v *Validator) Validate(u Upload) error {
	ext, ok := Extension(u.Filename)
	if !ok {
		return services.Wrap(services.ErrValidation, stage, "",
			fmt.Sprintf("file %q has no extension; allowed types: %s", u.Filename, strings.Join(v.Extensions(), ", ")), nil)
	}
	if _, allowed := v.allowed[ext]; !allowed {
		return services.Wrap(services.ErrValidation, stage, "",
			fmt.Sprintf("unsupported file type %q; allowed types: %s", ext, strings.Join(v.Extensions(), ", ")), nil)
	}
	if u.Size < 0 {
		return services.Wrap(services.ErrValidation, stage, "", "file size unknown", nil)
	}
	if u.Size > v.maxBytes {
		return v.sizeError()
	}
	return nil
}

func (v *Validator) sizeError() error {
	return SizeLimitError(v.maxBytes)
}

// SizeLimitError is the validation error reported for uploads over maxBytes.
func SizeLimitError(maxBytes int64) error {
	return services.Wrap(services.ErrValidation, stage, "",
		fmt.Sprintf("File size exceeds the %.2f MiB limit. Please upload a smaller file.", float64(maxBytes)/(1024*1024)), nil)
}

// Save streams the upload body into dir as upload.<ext> and returns the path.
// A body longer than the bound is rejected and the partial file removed, so a
// wrong declared Size cannot bypass Validate.
func (v *Validator) Save(u Upload, dir string) (string, error) {
	if u.Body == nil {
		return "", services.Wrap(services.ErrValidation, stage, "save", "empty upload", nil)
	}
	ext, _ := Extension(u.Filename)
	path := filepath.Join(dir, "upload."+ext)
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	written, copyErr := io.Copy(file, io.LimitReader(u.Body, v.maxBytes+1))
	closeErr := file.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if written > v.maxBytes {
		_ = os.Remove(path)
		return "", v.sizeError()
	}
	return path, nil
}

// Extension returns the lower-cased text after the last "." of filename.
func Extension(filename string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(filename))
	idx := strings.LastIndex(base, ".")
	if idx < 0 || idx == len(base)-1 {
		return "", false
	}
	return strings.ToLower(base[idx+1:]), true
}
