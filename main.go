package main

import (
	"os"

	"github.com/kebairia/stackbackup/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
