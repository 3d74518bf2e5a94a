// Command molsim runs molecular simulation apps against a molsim server.
//
//	molsim graph -app vde.json [-run ID]
//	molsim run -app vde.json -email a@b.com -input protein.pdb [-widget load] [-watch]
//	molsim watch -app vde.json -run ID
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// ExitError carries the exit code of a failed invocation.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

const usage = `molsim - run molecular simulation apps.

Usage:
  molsim <command> [options]

Commands:
  graph   print the widget graph of an app as DOT
  run     start a session, submit an input file and run a widget
  watch   follow a session until it ends

Run "molsim <command> -h" for the options of a command.
`

func run(ctx context.Context, out, logOut io.Writer, args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "-help" || args[0] == "help" {
		fmt.Fprint(out, usage)

		return nil
	}

	cmd, ok := commands[args[0]]
	if !ok {
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q\n%s", args[0], usage)}
	}

	return cmd(ctx, out, logOut, args[1:])
}

type command func(ctx context.Context, out, logOut io.Writer, args []string) error

var commands = map[string]command{
	"graph": graphCommand,
	"run":   runCommand,
	"watch": watchCommand,
}
