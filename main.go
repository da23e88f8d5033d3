package main

import (
	"os"

	"github.com/carelink/medfleet/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
