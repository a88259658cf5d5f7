package main

import "github.com/example/plugwarden/cmd/plugwarden/cmd"

func main() {
	cmd.Execute()
}
