package main

import "github.com/lkarlslund/strpool/internal/cli"

func main() {
	cli.Execute()
}
