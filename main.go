package main

import "corebank/cmd"

func main() {
	cmd.Execute()
}
