package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/yndnr/respkv/internal/cli/output"
	"github.com/yndnr/respkv/pkg/resp"
)

// Session is the server connection the REPL drives.
type Session interface {
	Do(ctx context.Context, args ...string) (resp.Value, error)
	Receive(ctx context.Context) (resp.Value, error)
}

// Config configures a REPL.
type Config struct {
	In      io.Reader
	Out     io.Writer
	Prompt  string
	Raw     bool
	History *History
}

// REPL represents the Read-Eval-Print Loop.
type REPL struct {
	session   Session
	in        io.Reader
	out       io.Writer
	prompt    string
	raw       bool
	completer *Completer
	history   *History
}

// New creates a REPL over session.
func New(session Session, cfg Config) *REPL {
	if cfg.History == nil {
		cfg.History = NewHistory("", 0)
	}
	if cfg.Prompt == "" {
		cfg.Prompt = "respkv> "
	}
	return &REPL{
		session:   session,
		in:        cfg.In,
		out:       cfg.Out,
		prompt:    cfg.Prompt,
		raw:       cfg.Raw,
		completer: NewCompleter(),
		history:   cfg.History,
	}
}

// Run reads commands until exit, EOF or ctx is cancelled. History is
// loaded before the first prompt and saved on return.
func (r *REPL) Run(ctx context.Context) error {
	if err := r.history.Load(); err != nil {
		fmt.Fprintf(r.out, "warning: could not load history: %v\n", err)
	}
	defer r.history.Save()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r.in)
		scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(r.out, r.prompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out)
			return nil
		case err := <-readErr:
			fmt.Fprintln(r.out)
			return err
		case line = <-lines:
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		r.history.Add(line)

		args, err := Split(line)
		if err != nil {
			fmt.Fprintf(r.out, "Invalid argument(s): %v\n", err)
			continue
		}
		if len(args) == 0 {
			continue
		}

		done, err := r.execute(ctx, args)
		if err != nil {
			fmt.Fprintf(r.out, "Error: %v\n", err)
		}
		if done {
			return nil
		}
	}
}

// execute runs one line. done reports that the session should end.
func (r *REPL) execute(ctx context.Context, args []string) (done bool, err error) {
	switch strings.ToLower(args[0]) {
	case "exit", "quit":
		if strings.EqualFold(args[0], "quit") {
			// Let the server close its side cleanly.
			r.session.Do(ctx, "QUIT")
		}
		return true, nil
	case "help":
		r.help(args[1:])
		return false, nil
	case "clear":
		fmt.Fprint(r.out, "\033[H\033[2J")
		return false, nil
	}

	v, err := r.session.Do(ctx, args...)
	if err != nil {
		return false, err
	}
	r.print(v)

	if strings.EqualFold(args[0], "SUBSCRIBE") && isSubscribeAck(v) {
		return false, r.listen(ctx)
	}
	return false, nil
}

// listen prints pushed messages until ctx is cancelled.
func (r *REPL) listen(ctx context.Context) error {
	fmt.Fprintln(r.out, "Reading messages... (press Ctrl-C to quit)")
	for {
		v, err := r.session.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		r.print(v)
	}
}

func isSubscribeAck(v resp.Value) bool {
	arr, ok := v.(resp.Array)
	if !ok || len(arr) == 0 {
		return false
	}
	kind, ok := arr[0].(resp.BulkString)
	return ok && strings.EqualFold(string(kind), "subscribe")
}

func (r *REPL) print(v resp.Value) {
	if r.raw {
		output.FormatRaw(r.out, v)
		return
	}
	output.FormatReply(r.out, v)
}

func (r *REPL) help(args []string) {
	prefix := ""
	if len(args) > 0 {
		prefix = args[0]
	}
	var names []string
	if prefix == "" {
		names = r.completer.commands
	} else {
		names = r.completer.Complete(prefix)
	}
	if len(names) == 0 {
		fmt.Fprintf(r.out, "no commands match %q\n", prefix)
		return
	}
	fmt.Fprintln(r.out, strings.Join(names, " "))
}
