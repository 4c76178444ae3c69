package main

import "github.com/autotab/api/internal/cli"

func main() {
	cli.Execute()
}
