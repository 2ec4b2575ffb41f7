package main

import (
	"os"

	"github.com/livingpark/ppmi-downloader/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
