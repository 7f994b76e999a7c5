// armhv is the command-line interface to the hypervisor.
package main

import (
	"context"
	"os"

	"github.com/whexy/armhv/internal/cli"
	"github.com/whexy/armhv/internal/cli/cmd"
)

var (
	// No virtualization backend ships with this binary; wiring one in is left to a build that
	// links a platform-specific implementation of hv.Backend.
	commands = []cli.Command{
		cmd.Run(nil),
	}
)

// Entry point.
func main() {
	result :=
		cli.New(context.Background()).
			WithLogger(os.Stderr).
			WithCommands(commands).
			WithHelp(cmd.Help(commands)).
			Execute(os.Args[1:])

	os.Exit(result)
}
