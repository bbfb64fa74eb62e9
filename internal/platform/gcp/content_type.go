package gcp

import (
	"path"
	"strings"
)

var contentTypesByExt = map[string]string{
	".html":     "text/html; charset=utf-8",
	".htm":      "text/html; charset=utf-8",
	".js":       "application/javascript",
	".mjs":      "application/javascript",
	".css":      "text/css; charset=utf-8",
	".json":     "application/json",
	".map":      "application/json",
	".wasm":     "application/wasm",
	".txt":      "text/plain; charset=utf-8",
	".xml":      "application/xml",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".webp":     "image/webp",
	".gif":      "image/gif",
	".svg":      "image/svg+xml",
	".ico":      "image/x-icon",
	".mp3":      "audio/mpeg",
	".ogg":      "audio/ogg",
	".wav":      "audio/wav",
	".mp4":      "video/mp4",
	".webm":     "video/webm",
	".woff":     "font/woff",
	".woff2":    "font/woff2",
	".ttf":      "font/ttf",
	".zip":      "application/zip",
	".data":     "application/octet-stream",
	".unityweb": "application/octet-stream",
}

// ContentTypeForKey guesses a Content-Type from the object key's extension; "" when unknown.
func ContentTypeForKey(key string) string {
	s := strings.ToLower(strings.TrimSpace(key))
	if s == "" {
		return ""
	}
	if i := strings.Index(s, "?"); i >= 0 {
		s = s[:i]
	}
	return contentTypesByExt[path.Ext(s)]
}
