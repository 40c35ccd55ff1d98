package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const lampPage = `<html><head><title>Brass Desk Lamp</title></head>
<body><span class="price">$19.99</span> In Stock</body></html>`

func writePage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(path, []byte(lampPage), 0o600))
	return path
}

func TestExtractJSONFromFile(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	err := app.Run([]string{"productindexer", "extract", "--url", "https://shop.example/lamp", writePage(t)})
	require.NoError(t, err)

	var got extraction
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "generic", got.Extractor)
	assert.Equal(t, "Brass Desk Lamp", got.Details.Name)
	assert.Equal(t, "$19.99", got.Details.Price)
	assert.Equal(t, "In Stock", got.Details.Availability)
	assert.Equal(t, "https://shop.example/lamp", got.Details.ProductURL)
}

func TestExtractYAMLFromStdin(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	app := newApp(strings.NewReader(lampPage), &out)
	err := app.Run([]string{"productindexer", "extract", "--format", "YAML", "-"})
	require.NoError(t, err)

	var got extraction
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "$19.99", got.Details.Price)
	assert.Contains(t, out.String(), "imageUrl:")
}

func TestExtractFetchesURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(lampPage))
	}))
	t.Cleanup(srv.Close)

	var out bytes.Buffer
	app := newApp(strings.NewReader(""), &out)
	require.NoError(t, app.Run([]string{"productindexer", "extract", "--url", srv.URL}))

	var got extraction
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "$19.99", got.Details.Price)
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad format", []string{"extract", "--format", "xml", "-"}, "unknown format"},
		{"no input", []string{"extract"}, "FILE argument or --url"},
		{"missing file", []string{"extract", "/nonexistent/page.html"}, "read /nonexistent/page.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			app := newApp(strings.NewReader(""), &bytes.Buffer{})
			err := app.Run(append([]string{"productindexer"}, tt.args...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
