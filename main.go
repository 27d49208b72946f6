package main

import "github.com/Soflution1/McpHub/cmd"

func main() {
	cmd.Execute()
}
