// Package main provides the entry point for the ytchat CLI.
package main

import (
	"fmt"
	"os"

	"github.com/raphaelgruber/ytchat/internal/cli"
)

// version is set at build time.
var version = "0.1.0"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
