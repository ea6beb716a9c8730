package main

import (
	"os"

	"github.com/ChristofferDahl/gpuip/cmd/gpuip/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
