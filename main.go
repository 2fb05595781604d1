package main

import "cinemind/cmd"

func main() {
	cmd.Execute()
}
