package main

import "github.com/YuminosukeSato/scigo-workbench/internal/cli"

var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.Execute()
}
