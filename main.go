package main

import "github.com/isometry/lsshkeys/internal/cli"

func main() {
	cli.Execute()
}
