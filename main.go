package main

import "github.com/shaharia-lab/octave-core/cmd"

func main() {
	cmd.Execute()
}
