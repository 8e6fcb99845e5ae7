package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// GeneratePostID derives a post identifier from the current wall clock in
// milliseconds. Two requests landing in the same millisecond collide and the
// later one overwrites the earlier; switching to a collision-resistant
// scheme is pending a product decision.
func GeneratePostID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// MediaFileName builds the stored name for the media file at the given
// position: timestamp, index, and the sanitized original name. Files
// uploaded without a name fall back to media-{index}.
func MediaFileName(now time.Time, index int, originalName string) string {
	sanitized := SanitizeFileName(originalName)
	if sanitized == "" {
		sanitized = fmt.Sprintf("media-%d", index)
	}
	return fmt.Sprintf("%d-%d-%s", now.UnixMilli(), index, sanitized)
}

// ThumbnailFileName builds the stored name for a post thumbnail, keeping
// the original extension when one is present.
func ThumbnailFileName(postID, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	return fmt.Sprintf("%s-thumbnail%s", postID, ext)
}

// SanitizeFileName strips path components and replaces any character
// outside [a-zA-Z0-9._-] so generated names are safe as object keys and
// file names.
func SanitizeFileName(name string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == string(filepath.Separator) {
		return ""
	}
	var builder strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '.' || r == '_' || r == '-':
			builder.WriteRune(r)
		default:
			builder.WriteByte('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
