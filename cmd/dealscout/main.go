package main

import (
	"dealscout/internal/cli"
)

func main() {
	cli.Execute()
}
