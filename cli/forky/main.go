package main

import (
	"os"

	forkycmder "github.com/forkyhq/forky/cmd/forky"
)

func main() {
	cmd := forkycmder.NewForkyCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
