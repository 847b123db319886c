package httputil

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// queryParam returns the trimmed first value of a query parameter
func queryParam(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// ParseQueryInt returns an integer query parameter, or defaultVal when it is
// absent or blank
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	raw := queryParam(r, key)
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, raw)
	}
	return n, nil
}

// ParseQueryString returns a query parameter, or defaultVal when it is absent
// or blank. Surrounding whitespace is removed.
func ParseQueryString(r *http.Request, key string, defaultVal string) string {
	if raw := queryParam(r, key); raw != "" {
		return raw
	}
	return defaultVal
}

// ParseHeaderList splits a comma-separated header into trimmed, non-empty values.
// Repeated headers are concatenated in order.
func ParseHeaderList(r *http.Request, key string) []string {
	var values []string
	for _, header := range r.Header.Values(key) {
		for _, part := range strings.Split(header, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	return values
}
