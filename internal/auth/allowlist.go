package auth

import (
	"strings"

	"golang.org/x/text/cases"
)

// ParseAllowList splits the configured comma-separated allow-list into
// case-folded entries, dropping blanks. Entries starting with @ match any
// email on that domain; all other entries must match exactly.
func ParseAllowList(raw string) []string {
	folder := cases.Fold()
	parts := strings.Split(raw, ",")
	list := make([]string, 0, len(parts))
	for _, part := range parts {
		entry := folder.String(strings.TrimSpace(part))
		if entry == "" {
			continue
		}
		list = append(list, entry)
	}
	return list
}

// Authorized reports whether the email is covered by the allow-list. An
// empty list or missing email fails closed.
func Authorized(email string, allowList []string) bool {
	if len(allowList) == 0 {
		return false
	}
	folded := cases.Fold().String(strings.TrimSpace(email))
	if folded == "" {
		return false
	}
	for _, entry := range allowList {
		if entry == folded {
			return true
		}
		if strings.HasPrefix(entry, "@") && strings.HasSuffix(folded, entry) {
			return true
		}
	}
	return false
}
