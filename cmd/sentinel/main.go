package main

import "market-sentinel/internal/cli"

func main() {
	cli.Execute()
}
