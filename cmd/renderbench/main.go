package main

import (
	"os"

	"github.com/armadaproject/renderbench/cmd/renderbench/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
