// File: protocol/mime.go
// Author: momentics <momentics@gmail.com>

package protocol

import "path"

// DefaultMimeType is returned for unknown or missing suffixes.
const DefaultMimeType = "text/html"

// MimeTable maps file suffixes to content types. It is built once and never
// mutated, so every reactor can share one instance.
type MimeTable struct {
	types map[string]string
	def   string
}

// NewMimeTable returns the built-in suffix table.
func NewMimeTable() *MimeTable {
	return &MimeTable{
		types: map[string]string{
			".html": "text/html",
			".avi":  "video/x-msvideo",
			".bmp":  "image/bmp",
			".c":    "text/plain",
			".doc":  "application/msword",
			".gif":  "image/gif",
			".gz":   "application/x-gzip",
			".htm":  "text/html",
			".ico":  "image/x-icon",
			".jpg":  "image/jpeg",
			".png":  "image/png",
			".txt":  "text/plain",
			".mp3":  "audio/mp3",
		},
		def: DefaultMimeType,
	}
}

// Lookup returns the content type for a suffix such as ".png".
func (m *MimeTable) Lookup(suffix string) string {
	if t, ok := m.types[suffix]; ok {
		return t
	}
	return m.def
}

// ForPath returns the content type for the extension of name.
func (m *MimeTable) ForPath(name string) string {
	return m.Lookup(path.Ext(name))
}
