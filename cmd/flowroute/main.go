// Command flowroute runs the distributed-memory hydrological
// particle-transport simulator (§6).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/riverfold/flowroute"
	"github.com/riverfold/flowroute/cli"
)

// Exit codes distinguish a configuration mistake and an incompatible
// restart from an ordinary runtime failure, so scripts driving a cluster
// of flowroute processes can tell them apart (§6).
const (
	exitOK                = 0
	exitRuntimeError      = 1
	exitConfigInvalid     = 2
	exitStateIncompatible = 3
)

func main() {
	root := cli.NewRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "flowroute:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch err.(type) {
	case *flowroute.ConfigurationInvalidError:
		return exitConfigInvalid
	case *flowroute.StateIncompatibleError:
		return exitStateIncompatible
	default:
		return exitRuntimeError
	}
}
