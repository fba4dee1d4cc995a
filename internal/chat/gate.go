package chat

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// codingKeywords is the allow-list of the batch endpoint. The gate only
// keeps obviously off-topic questions away from a paid upstream; it is not a
// security boundary and any phrasing with one of these words passes.
var codingKeywords = []string{
	"python", "java", "c++", "javascript", "html", "css",
	"react", "node", "api", "flask", "django",
	"error", "bug", "code", "program", "function",
	"loop", "array", "database", "sql", "algorithm",
	"class", "object", "variable", "compiler",
}

// IsCodingQuestion reports whether question contains any allow-listed term,
// case-insensitively and after NFKC normalization (so full-width letters
// count).
func IsCodingQuestion(question string) bool {
	q := strings.ToLower(norm.NFKC.String(question))
	for _, kw := range codingKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
