package main

import (
	"fmt"
	"os"

	"github.com/zjy-dev/gapwatch/cmd/gapwatch/app"
)

func main() {
	if err := app.NewGapwatchCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
