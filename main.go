// Package main is the entry point for the JAProxy traffic observer.
package main

import (
	"fmt"
	"os"

	"github.com/Skinpack/JAProxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
