package main

import "github.com/vietddude/batchfetch/internal/cli"

func main() {
	cli.Execute()
}
