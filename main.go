// ./main.go
package main

import (
	"github.com/Activer007/computer-use-ootb/cmd"
)

// main is the entry point for the computer-use CLI.
func main() {
	// Execute the root command defined in the cmd package.
	// This handles all command-line parsing, configuration, and execution.
	cmd.Execute()
}
