package content

import (
	"errors"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

// ErrNotText rejects uploads that are not plain text or markdown.
var ErrNotText = errors.New("upload is not a text file (.txt, .md)")

var textExtensions = map[string]struct{}{
	".md":       {},
	".markdown": {},
	".txt":      {},
}

// ValidateText checks an upload before any tier is written. The file name may
// be empty when the client does not send one.
func ValidateText(name string, body []byte) error {
	if !utf8.Valid(body) {
		return ErrNotText
	}
	if _, ok := textExtensions[strings.ToLower(filepath.Ext(name))]; ok {
		return nil
	}
	for mt := mimetype.Detect(body); mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "text/") {
			return nil
		}
	}
	return ErrNotText
}
