package main

import "github.com/kozaktomas/face-index/cmd"

func main() {
	cmd.Execute()
}
