package main

import "github.com/machog/machog/cmd/machog/cmd"

func main() {
	cmd.Execute()
}
