package common

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// IntQueryParam parses an optional integer query parameter.
// Returns fallback when the parameter is absent or blank.
func IntQueryParam(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: must be an integer", name)
	}
	return value, nil
}

// OptionalQueryParam returns the value of a query parameter and whether it was supplied at all.
// A parameter given with an empty value counts as supplied.
func OptionalQueryParam(r *http.Request, name string) (string, bool) {
	query := r.URL.Query()
	if !query.Has(name) {
		return "", false
	}
	return query.Get(name), true
}
