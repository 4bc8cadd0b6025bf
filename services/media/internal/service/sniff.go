package service

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/utafrali/CommerceCheckout/services/media/internal/domain"
)

// aliases maps non-canonical types to the name stored and served.
var aliases = map[string]string{
	"image/jpg":   "image/jpeg",
	"image/pjpeg": "image/jpeg",
}

// Sniff classifies data from its leading bytes. The declared file name and
// any client-supplied type are ignored. It returns the normalized media type
// without parameters and the matching file extension, which may be empty.
func Sniff(data []byte) (contentType, ext string) {
	m := mimetype.Detect(data)
	return NormalizeContentType(m.String()), m.Extension()
}

// NormalizeContentType lowercases t, drops parameters and resolves aliases.
// An empty type becomes application/octet-stream.
func NormalizeContentType(t string) string {
	base, _, _ := strings.Cut(t, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	if base == "" {
		return domain.ContentTypeUnknown
	}
	if canonical, ok := aliases[base]; ok {
		return canonical
	}
	return base
}
