// Package main wires together the product indexer binary.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newApp(os.Stdin, os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "productindexer: %v\n", err)
		os.Exit(1)
	}
}
