package main

import "github.com/bdougie/anomalyvision/internal/cli"

func main() {
	cli.Execute()
}
