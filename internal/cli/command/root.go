// Package command defines the emberdb-cli application.
//
// It uses urfave/cli/v2 for flag parsing and supports both one-shot
// command mode (arguments on the command line) and an interactive REPL.
package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/solask/emberdb/internal/cli/client"
	"github.com/solask/emberdb/internal/cli/repl"
	"github.com/solask/emberdb/internal/infra/buildinfo"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:      "emberdb-cli",
		Usage:     "emberdb command-line client",
		Version:   buildinfo.String(),
		Flags:     globalFlags(),
		ArgsUsage: "[command [arg ...]]",
		Action:    run,
	}
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "server address (host:port)",
			EnvVars: []string{"EMBERDB_SERVER"},
			Value:   "127.0.0.1:6379",
		},
		&cli.StringFlag{
			Name:    "password",
			Aliases: []string{"a"},
			Usage:   "server password, sent via AUTH on connect",
			EnvVars: []string{"EMBERDB_PASSWORD"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Usage: "per-request timeout",
			Value: 30 * time.Second,
		},
	}
}

// run executes one command when arguments are present, otherwise drops
// into the interactive REPL.
func run(c *cli.Context) error {
	conn, err := client.Dial(
		c.String("server"),
		c.String("password"),
		client.WithTimeout(c.Duration("timeout")),
	)
	if err != nil {
		return err
	}
	defer conn.Close()

	if c.Args().Present() {
		reply, err := conn.Do(c.Args().Slice()...)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, reply.Format())
		if reply.Kind == client.ReplyError {
			return cli.Exit("", 1)
		}
		return nil
	}

	return repl.New(conn).Run()
}
