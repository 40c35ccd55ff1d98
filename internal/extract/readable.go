package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

// Article is the readable main content of a page.
type Article struct {
	Title string
	Text  string
}

// Readable distills the main content of a page into plain text for indexing.
func Readable(content, sourceURL string) (Article, error) {
	pageURL, err := url.Parse(sourceURL)
	if err != nil {
		return Article{}, fmt.Errorf("parse source url: %w", err)
	}
	parser := readability.NewParser()
	parsed, err := parser.Parse(strings.NewReader(content), pageURL)
	if err != nil {
		return Article{}, fmt.Errorf("readability parse: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(parsed.Content))
	if err != nil {
		return Article{}, fmt.Errorf("parse readable content: %w", err)
	}
	var blocks []string
	doc.Find("h1,h2,h3,h4,p,li,pre").Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		if text := normalizeSpace(doc.Text()); text != "" {
			blocks = append(blocks, text)
		}
	}
	return Article{
		Title: normalizeSpace(parsed.Title),
		Text:  strings.Join(blocks, "\n\n"),
	}, nil
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
