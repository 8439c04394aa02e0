package main

import "github.com/synheart/vitalsynth/internal/cli"

func main() {
	cli.Execute()
}
