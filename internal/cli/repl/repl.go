// Package repl provides the interactive mode for emberdb-cli.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/solask/emberdb/internal/cli/client"
)

// REPL reads commands from input, sends them to the server, and prints
// the formatted replies.
type REPL struct {
	client    *client.Client
	input     io.Reader
	output    io.Writer
	prompt    string
	completer *Completer
	history   *History
}

// New creates a REPL bound to an established client connection.
func New(c *client.Client) *REPL {
	return &REPL{
		client:    c,
		input:     os.Stdin,
		output:    os.Stdout,
		prompt:    "emberdb> ",
		completer: NewCompleter(),
		history:   NewHistory(),
	}
}

// Run starts the loop. It returns when input ends or the user quits.
func (r *REPL) Run() error {
	_ = r.history.Load()
	defer func() { _ = r.history.Save() }()

	reader := bufio.NewReader(r.input)
	for {
		fmt.Fprint(r.output, r.prompt)

		line, err := reader.ReadString('\n')
		if err == io.EOF {
			fmt.Fprintln(r.output)
			return nil
		}
		if err != nil {
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		case "help":
			r.printHelp()
			continue
		}

		args := splitArgs(line)
		reply, err := r.client.Do(args...)
		if err != nil {
			return fmt.Errorf("repl: %w", err)
		}
		fmt.Fprintln(r.output, reply.Format())

		if strings.EqualFold(args[0], "QUIT") {
			return nil
		}
	}
}

func (r *REPL) printHelp() {
	fmt.Fprintln(r.output, "Enter any server command, e.g. SET key value / GET key / KEYS *")
	fmt.Fprintln(r.output, "Known commands:", strings.Join(r.completer.Commands(), " "))
	fmt.Fprintln(r.output, "Type exit or quit to leave.")
}

// splitArgs splits a command line into arguments, honoring double
// quotes so values may contain spaces.
func splitArgs(line string) []string {
	var args []string
	var cur strings.Builder
	inQuotes := false
	for _, ch := range line {
		switch {
		case ch == '"':
			inQuotes = !inQuotes
		case ch == ' ' && !inQuotes:
			if cur.Len() > 0 {
				args = append(args, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(ch)
		}
	}
	if cur.Len() > 0 {
		args = append(args, cur.String())
	}
	return args
}
