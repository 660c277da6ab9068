package main

import (
	"os"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
