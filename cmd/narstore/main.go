package main

import "github.com/aweris/narstore/cmd/narstore/cmd"

func main() {
	cmd.Execute()
}
