package main

import "github.com/alterlabs/alter/cmd/alter/cli"

func main() {
	cli.Execute()
}
