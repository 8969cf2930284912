package main

import (
	"os"

	"github.com/opencta/quant/cmd/quant/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
