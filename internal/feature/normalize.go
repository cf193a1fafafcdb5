package feature

import (
	"regexp"
	"strings"
)

var (
	// "HTTPServer" -> "HTTP_Server"
	acronymBoundary = regexp.MustCompile(`([A-Z]+)([A-Z][a-z])`)
	// "getWsgi" -> "get_Wsgi", "v2Api" -> "v2_Api"
	wordBoundary = regexp.MustCompile(`([a-z\d])([A-Z])`)
)

// Normalize converts a mixed-case identifier to snake case.
//
// Leading and trailing underscores are kept, so dunder names such as
// __init__ come back unchanged. Dashes become underscores.
func Normalize(name string) string {
	s := acronymBoundary.ReplaceAllString(name, "${1}_${2}")
	s = wordBoundary.ReplaceAllString(s, "${1}_${2}")
	s = strings.ReplaceAll(s, "-", "_")
	return strings.ToLower(s)
}
