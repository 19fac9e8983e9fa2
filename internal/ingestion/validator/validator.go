// Package validator checks ingestion inputs before any work starts: the
// dataset must exist with a supported extension, the index name must be a
// safe directory name and the format must be known.
package validator

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/iambluuu/CS419-MovieTextSearch/internal/ingestion/source"
	apperrors "github.com/iambluuu/CS419-MovieTextSearch/pkg/errors"
)

var indexNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	var parts []string
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s:%s", field, msg))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return apperrors.ErrInvalidInput }

// ValidateIndexName rejects names that are not safe as directory names.
func ValidateIndexName(name string) error {
	if !indexNamePattern.MatchString(name) {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest,
			"index name %q must match %s", name, indexNamePattern)
	}
	return nil
}

// ValidateSource checks that path is an existing regular file with a
// dataset extension and that index is a valid name.
func ValidateSource(path, index string) error {
	if err := ValidateIndexName(index); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return apperrors.Newf(apperrors.ErrDatasetNotFound, http.StatusNotFound, "dataset %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("inspecting dataset %s: %w", path, err)
	}
	if info.IsDir() {
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "dataset %s is a directory", path)
	}
	if !source.IsSupported(path) {
		return apperrors.Newf(apperrors.ErrUnsupportedFormat, http.StatusBadRequest,
			"dataset extension %q is not one of %s", filepath.Ext(path), strings.Join(source.Extensions, ", "))
	}
	return nil
}

// ValidateRequest checks the fields of an ingestion trigger. Empty values
// mean the configured default and are accepted.
func ValidateRequest(sourcePath, index, format string) error {
	errs := make(map[string]string)
	if index != "" && !indexNamePattern.MatchString(index) {
		errs["index"] = fmt.Sprintf("must match %s", indexNamePattern)
	}
	if format != "" {
		if _, err := source.LayoutOf(format); err != nil {
			errs["format"] = "must be tmdb or merged"
		}
	}
	if sourcePath != "" && !source.IsSupported(sourcePath) {
		errs["source"] = "must be a .csv, .xlsx or .xlsm file"
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
