package main

import "github.com/nvr-ai/go-faceid/cmd"

func main() {
	cmd.Execute()
}
