package main

import "github.com/aweris/vcache/cmd/vcache/cmd"

func main() {
	cmd.Execute()
}
