package main

import "prdgen/internal/cli"

func main() {
	cli.Execute()
}
