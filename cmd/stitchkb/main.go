package main

import (
	"os"

	"github.com/stitchkb/stitchkb/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
