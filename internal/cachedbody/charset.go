package cachedbody

import (
	"mime"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// DefaultCharset applies when Content-Type does not declare one.
const DefaultCharset = "utf-8"

// charsetOf extracts the charset parameter of a Content-Type value.
func charsetOf(contentType string) string {
	if contentType == "" {
		return DefaultCharset
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return DefaultCharset
	}
	if cs := strings.TrimSpace(params["charset"]); cs != "" {
		return cs
	}
	return DefaultCharset
}

// lookup returns nil for UTF-8 and for charsets x/text does not know, in
// which case bytes are taken as they are.
func lookup(charset string) encoding.Encoding {
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return nil
	}
	return enc
}

func decode(b []byte, charset string) string {
	if len(b) == 0 {
		return ""
	}
	enc := lookup(charset)
	if enc == nil {
		return string(b)
	}
	out, err := enc.NewDecoder().Bytes(b)
	if err != nil {
		return string(b)
	}
	return string(out)
}
