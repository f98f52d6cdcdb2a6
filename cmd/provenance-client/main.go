package main

import (
	"os"

	"github.com/information-sharing-networks/provenance-demo/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
