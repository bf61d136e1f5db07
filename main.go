package main

import "github.com/coredbg/coredbg/cmd"

func main() {
	cmd.Execute()
}
