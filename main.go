package main

import "sourcery/cmd"

func main() {
	cmd.Execute()
}
