// Package validators turns request input into checked values, returning
// CodeValidation errors that name the offending field.
package validators

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/catalogsync-backend/pkg/errors"
)

// Clean trims s and caps it at maxRunes runes. A non-positive maxRunes
// disables the cap.
func Clean(s string, maxRunes int) string {
	s = strings.TrimSpace(s)
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	return string([]rune(s)[:maxRunes])
}

// PathParam returns the cleaned chi route parameter name. An empty value is
// a validation error.
func PathParam(r *http.Request, name string, maxRunes int) (string, error) {
	value := Clean(chi.URLParam(r, name), maxRunes)
	if value == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s required", name).WithDetails(map[string]any{"field": name})
	}
	return value, nil
}
