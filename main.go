package main

import (
	"os"

	"github.com/kazuph/browser-observer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
