package main

import (
	"os"

	"github.com/dshills/wordbatch/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
