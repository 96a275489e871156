package main

import "github.com/audiolibrelab/dictaphone/cmd"

func main() {
	cmd.Execute()
}
