package media

import (
	"encoding/base64"
	"strings"
)

// StripCSSURL extracts the first URL from a CSS background-image value such
// as `url("https://x/y.png")`. "none" and values without url() yield "".
func StripCSSURL(v string) string {
	v = strings.TrimSpace(v)
	start := strings.Index(v, "url(")
	if start < 0 {
		return ""
	}
	rest := v[start+len("url("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return ""
	}
	u := strings.TrimSpace(rest[:end])
	u = strings.Trim(u, `"'`)
	return u
}

// DataURI encodes PNG bytes as a data URI. Empty input yields "".
func DataURI(png []byte) string {
	if len(png) == 0 {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
