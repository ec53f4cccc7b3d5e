// Package main provides the entry point for gatewayctl.
package main

import (
	"fmt"
	"os"

	"github.com/ericfisherdev/wa-oauth-gateway/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
}
