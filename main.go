package main

import (
	"github.com/dmorley/colsnap/cmd"
)

func main() {
	cmd.Execute()
}
