// Package feed turns raw RSS/Atom bytes into article records.
package feed

import (
	"bytes"
	"html"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"feedhub/internal/model"
)

var (
	strictPolicy = bluemonday.StrictPolicy()
	imgPattern   = regexp.MustCompile(`(?is)<img[^>]+src=["']([^"']+)["']|<image>([^<]+)</image>`)
)

// Parser converts feed documents into articles. It is tolerant: malformed
// documents yield an empty result and a broken item never fails its siblings.
type Parser struct {
	log *slog.Logger
	now func() time.Time
}

// New creates a Parser.
func New(log *slog.Logger) *Parser {
	return &Parser{log: log, now: time.Now}
}

// Parse extracts articles from raw feed bytes. Items without a valid
// absolute http/https link are dropped; everything else falls back to
// defaults rather than failing.
func (p *Parser) Parse(raw []byte, src model.Source) []model.Article {
	parsed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		p.log.Error("parse feed", "source_id", src.ID, "error", err)
		return nil
	}

	var articles []model.Article
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		link := extractLink(item)
		if link == "" {
			continue
		}

		title := StripHTML(item.Title)
		if title == "" {
			title = "No title"
		}

		description := StripHTML(item.Description)
		if description == "" {
			description = StripHTML(item.Content)
		}

		pubDate := p.now().UTC()
		switch {
		case item.PublishedParsed != nil:
			pubDate = item.PublishedParsed.UTC()
		case item.UpdatedParsed != nil:
			pubDate = item.UpdatedParsed.UTC()
		}

		articles = append(articles, model.Article{
			Title:       title,
			Description: description,
			Link:        link,
			PubDate:     pubDate,
			Thumbnail:   extractThumbnail(item),
			SourceID:    src.ID,
			Categories:  cleanCategories(item.Categories),
		})
	}
	return articles
}

// extractLink returns the item's first valid absolute http/https link.
// gofeed already prefers Atom rel="alternate" links when mapping Item.Link.
func extractLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); IsHTTPURL(link) {
		return link
	}
	for _, l := range item.Links {
		if l = strings.TrimSpace(l); IsHTTPURL(l) {
			return l
		}
	}
	return ""
}

// extractThumbnail tries, in order: media:content/media:thumbnail URL
// attributes, an enclosure with an image MIME type, the item's image
// element, and finally an <img> or <image> found inside the markup.
func extractThumbnail(item *gofeed.Item) string {
	if mediaExt, ok := item.Extensions["media"]; ok {
		for _, key := range []string{"content", "thumbnail"} {
			for _, ext := range mediaExt[key] {
				if u := ext.Attrs["url"]; IsHTTPURL(u) {
					return u
				}
			}
		}
	}

	for _, enc := range item.Enclosures {
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && IsHTTPURL(enc.URL) {
			return enc.URL
		}
	}

	if item.Image != nil && IsHTTPURL(item.Image.URL) {
		return item.Image.URL
	}

	for _, markup := range []string{item.Content, item.Description} {
		if u := imageFromMarkup(markup); u != "" {
			return u
		}
	}
	return ""
}

func imageFromMarkup(markup string) string {
	m := imgPattern.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	u := m[1]
	if u == "" {
		u = strings.TrimSpace(m[2])
	}
	if IsHTTPURL(u) {
		return u
	}
	return ""
}

func cleanCategories(raw []string) []string {
	cats := []string{}
	seen := make(map[string]struct{})
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		cats = append(cats, c)
	}
	return cats
}

// StripHTML removes markup from s and decodes HTML entities.
func StripHTML(s string) string {
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(s)))
}

// IsHTTPURL reports whether s is an absolute http or https URL.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
