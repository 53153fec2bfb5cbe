package main

import "mailqueue/cmd"

func main() {
	cmd.Execute()
}
