package rename

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// maxSlugLength keeps generated names within typical filename and URL
// limits.
const maxSlugLength = 80

// MetadataName derives a rename candidate from the resource's own metadata,
// preferring title, then alt text, then the current filename. Used when the
// AI provider is unavailable.
func MetadataName(res *Resource) (string, error) {
	for _, source := range []string{res.Title, res.AltText, stemOf(res.Filename)} {
		if slug := Slugify(source); slug != "" {
			return slug, nil
		}
	}
	return "", fmt.Errorf("resource %s has no usable metadata", res.ID)
}

// MetadataDescriptor builds a naming descriptor from metadata alone, for
// when deep content analysis is unavailable.
func MetadataDescriptor(res *Resource) string {
	parts := make([]string, 0, 3)
	for _, s := range []string{res.Title, res.AltText, stemOf(res.Filename)} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Slugify lowercases, transliterates separators, and strips everything that
// is not alphanumeric or a hyphen. Returns "" when nothing survives.
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	lastHyphen := true // suppress leading hyphens
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '_' || r == '-' || r == '.' || r == '/':
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

// ValidName reports whether a caller-supplied name is an acceptable slug.
func ValidName(name string) bool {
	if name == "" || len(name) > maxSlugLength {
		return false
	}
	for _, r := range name {
		if !(unicode.IsLower(r) || unicode.IsDigit(r) || r == '-') {
			return false
		}
	}
	return !strings.HasPrefix(name, "-") && !strings.HasSuffix(name, "-")
}

func stemOf(filename string) string {
	base := path.Base(filename)
	if base == "." || base == "/" {
		return ""
	}
	return strings.TrimSuffix(base, path.Ext(base))
}
