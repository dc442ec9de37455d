package main

import (
	"os"

	"github.com/CodeMonkeyCybersecurity/crookedcart/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
