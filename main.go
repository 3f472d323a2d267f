package main

import "github.com/kiesman99/tiler/cmd"

func main() {
	cmd.Execute()
}
