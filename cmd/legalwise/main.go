// Package main provides the entry point for the legalwise CLI.
package main

import (
	"os"

	"github.com/Aman-CERP/legalwise/cmd/legalwise/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
