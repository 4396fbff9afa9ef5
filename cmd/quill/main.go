// Package main provides the entry point for the quill CLI.
package main

import (
	"os"

	"github.com/quillindex/quill/cmd/quill/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
