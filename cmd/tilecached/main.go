package main

import "github.com/tilecached/tilecached/internal/cmd"

func main() {
	cmd.Execute()
}
