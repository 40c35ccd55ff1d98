// Package answer decodes the free-text answers returned by the knowledge box
// into structured product data. Answers are a sequence of concatenated JSON
// documents, optionally followed by trailing prose.
package answer

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
	"unicode"

	"github.com/JakeFAU/realtime-product-indexer/internal/product"
)

// SummarySeparator joins summaries collected from several documents.
const SummarySeparator = " | "

// Result is the outcome of decoding an answer stream.
type Result struct {
	// Text is the answer with leading whitespace removed.
	Text string
	// Documents counts the JSON values decoded before the stream ended.
	Documents int
	Products  []any
	Summaries []string
	// Remainder holds the undecodable tail, if any. It is informational only.
	Remainder string
}

// Summary returns the collected summaries joined by SummarySeparator.
func (r Result) Summary() string {
	return strings.Join(r.Summaries, SummarySeparator)
}

// Structured returns the aggregated answer, or nil when no product was found.
func (r Result) Structured() *product.StructuredAnswer {
	if len(r.Products) == 0 {
		return nil
	}
	return &product.StructuredAnswer{
		Products: r.Products,
		Summary:  r.Summary(),
	}
}

// Decode reads JSON values from text one after another until the input is
// exhausted or a value fails to decode. It never fails; whatever was decoded
// before the first error is kept.
func Decode(text string) Result {
	trimmed := strings.TrimLeftFunc(text, unicode.IsSpace)
	res := Result{Text: trimmed}

	dec := json.NewDecoder(strings.NewReader(trimmed))
	dec.UseNumber()
	for {
		offset := dec.InputOffset()
		var v any
		err := dec.Decode(&v)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Remainder = strings.TrimLeftFunc(trimmed[offset:], unicode.IsSpace)
			break
		}
		res.Documents++
		res.collect(v)
	}
	return res
}

func (r *Result) collect(v any) {
	obj, ok := v.(map[string]any)
	if !ok {
		return
	}
	if products, ok := obj["products"].([]any); ok {
		r.Products = append(r.Products, products...)
	} else if hasKeys(obj, "name", "price") {
		r.Products = append(r.Products, obj)
	}
	if summary, ok := obj["summary"].(string); ok && summary != "" {
		r.Summaries = append(r.Summaries, summary)
	}
}

func hasKeys(obj map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			return false
		}
	}
	return true
}
