package datasource

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// DefaultLinkSelector matches anchors whose href ends in ".csv".
const DefaultLinkSelector = `a[href$=".csv"]`

// ErrNoCSVLink is returned when a landing page has no matching link.
var ErrNoCSVLink = errors.New("no csv link on page")

// ResolvePageLink fetches the HTML page at pageURL and returns the absolute
// URL of the first anchor matched by selector (DefaultLinkSelector when
// empty). Relative hrefs are resolved against pageURL.
func (l *Loader) ResolvePageLink(ctx context.Context, pageURL, selector string) (string, error) {
	if selector == "" {
		selector = DefaultLinkSelector
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	body, err := l.get(ctx, pageURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return firstLink(doc, base, selector)
}

func firstLink(doc *goquery.Document, base *url.URL, selector string) (string, error) {
	var (
		found string
		err   error
	)
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return true
		}
		var ref *url.URL
		ref, err = url.Parse(strings.TrimSpace(href))
		if err != nil {
			err = fmt.Errorf("parse href %q: %w", href, err)
			return false
		}
		found = base.ResolveReference(ref).String()
		return false
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w (selector %q)", ErrNoCSVLink, selector)
	}
	return found, nil
}
