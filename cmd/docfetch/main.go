package main

import "go-docfetch/cmd/docfetch/cmd"

func main() {
	cmd.Execute()
}
