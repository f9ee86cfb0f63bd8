package crawler

import (
	"context"
	"net/url"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"

	"github.com/sells-group/adcrawl/internal/browser"
)

// Hook runs before each navigation. It may rewrite the request URL or
// prepare the page.
type Hook func(ctx context.Context, page browser.Page, req *Request) error

// AddLanguage appends an hl query parameter for tag unless the URL already
// carries one. Existing parameters keep their order.
func AddLanguage(tag language.Tag) Hook {
	hl := tag.String()
	return func(_ context.Context, _ browser.Page, req *Request) error {
		u, err := url.Parse(req.URL)
		if err != nil {
			return eris.Wrapf(err, "crawler: language hook: parse %q", req.URL)
		}
		if u.Query().Get("hl") != "" {
			return nil
		}
		param := "hl=" + url.QueryEscape(hl)
		if u.RawQuery == "" {
			u.RawQuery = param
		} else {
			u.RawQuery += "&" + param
		}
		req.URL = u.String()
		return nil
	}
}

// SetViewport sizes the page before navigation.
func SetViewport(width, height int) Hook {
	return func(ctx context.Context, page browser.Page, _ *Request) error {
		return eris.Wrap(page.SetViewport(ctx, width, height), "crawler: viewport hook")
	}
}

// ParseLanguage parses a BCP 47 tag for AddLanguage. An empty string means
// English.
func ParseLanguage(s string) (language.Tag, error) {
	if s == "" {
		return language.English, nil
	}
	tag, err := language.Parse(s)
	if err != nil {
		return language.Und, eris.Wrapf(err, "crawler: language %q", s)
	}
	return tag, nil
}
