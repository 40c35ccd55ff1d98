package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/realtime-product-indexer/internal/config"
	"github.com/JakeFAU/realtime-product-indexer/internal/extract"
	collyfetcher "github.com/JakeFAU/realtime-product-indexer/internal/fetcher/colly"
	"github.com/JakeFAU/realtime-product-indexer/internal/product"
	"github.com/JakeFAU/realtime-product-indexer/internal/server"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

// extraction is the document printed by the extract command.
type extraction struct {
	Extractor string          `json:"extractor" yaml:"extractor"`
	Details   product.Details `json:"details" yaml:"details"`
}

func newApp(stdin io.Reader, stdout io.Writer) *cli.App {
	app := &cli.App{
		Name:  "productindexer",
		Usage: "index product pages into a knowledge box and query them",
		Commands: []*cli.Command{
			serveCommand(),
			extractCommand(stdin),
		},
	}
	app.Writer = stdout
	return app
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return fmt.Errorf("load config failed: %w", err)
			}
			app, err := server.Build(c.Context, &cfg)
			if err != nil {
				return err
			}
			return app.Run(c.Context)
		},
	}
}

func extractCommand(stdin io.Reader) *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "extract product details from a saved page, stdin, or a fetched URL",
		ArgsUsage: "[FILE|-]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "url",
				Usage: "source URL; selects the extractor and resolves relative links",
			},
			&cli.StringFlag{
				Name:  "format",
				Value: formatJSON,
				Usage: "output format: json or yaml",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "page fetch timeout when no FILE is given (0 uses the fetcher default)",
			},
		},
		Action: func(c *cli.Context) error {
			format := strings.ToLower(c.String("format"))
			if format != formatJSON && format != formatYAML {
				return fmt.Errorf("unknown format %q", c.String("format"))
			}
			sourceURL := strings.TrimSpace(c.String("url"))
			content, err := readContent(c.Context, c.Args().First(), sourceURL, stdin, c.Duration("timeout"))
			if err != nil {
				return err
			}
			out := extraction{
				Extractor: extract.NameFor(sourceURL),
				Details:   extract.Extract(content, sourceURL),
			}
			return writeExtraction(c.App.Writer, format, out)
		},
	}
}

func readContent(ctx context.Context, path, sourceURL string, stdin io.Reader, timeout time.Duration) (string, error) {
	switch path {
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case "":
		if sourceURL == "" {
			return "", errors.New("a FILE argument or --url is required")
		}
		fetcher := collyfetcher.New(collyfetcher.Config{Timeout: timeout})
		page, err := fetcher.FetchPage(ctx, sourceURL)
		if err != nil {
			return "", fmt.Errorf("fetch %s: %w", sourceURL, err)
		}
		return page, nil
	default:
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(b), nil
	}
}

func writeExtraction(w io.Writer, format string, out extraction) error {
	if format == formatYAML {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}
