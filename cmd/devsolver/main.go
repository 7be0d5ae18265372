package main

import "devsolver/internal/cli"

func main() {
	cli.Execute()
}
