package fetch

import (
	"net/url"
	"path"
	"strings"
)

// imageExtensions are the file extensions treated as images when a block
// references an asset by path.
var imageExtensions = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
}

// IsURL reports whether s is an absolute http or https URL.
func IsURL(s string) bool {
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func imageMIME(ref string) (string, bool) {
	p := ref
	if parsed, err := url.Parse(ref); err == nil && parsed.Path != "" {
		p = parsed.Path
	}
	mt, ok := imageExtensions[strings.ToLower(path.Ext(p))]
	return mt, ok
}

// ResolveReference resolves ref against base. Data URIs, absolute URLs and
// refs that cannot be parsed are returned unchanged.
func ResolveReference(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == "" || strings.HasPrefix(ref, "data:") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
