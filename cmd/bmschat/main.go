package main

import "github.com/imramesh222/bms-chat/internal/cli"

func main() {
	cli.Execute()
}
