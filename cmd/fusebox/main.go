package main

import (
	"os"

	"github.com/fusebox-ai/fusebox/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
