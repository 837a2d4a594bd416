package command

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/respkv/internal/cli/output"
	"github.com/yndnr/respkv/internal/cli/repl"
	"github.com/yndnr/respkv/pkg/resp"
)

// rootAction sends the arguments as one command, or starts the REPL when
// there are none.
func rootAction(c *cli.Context) error {
	s, err := getSession(c)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.NArg() == 0 {
		return runREPL(ctx, s, c.App.Reader)
	}
	return runOnce(ctx, s, c.Args().Slice())
}

func runOnce(ctx context.Context, s *session, args []string) error {
	v, err := s.conns.Do(ctx, args...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	s.printReply(v)

	if strings.EqualFold(args[0], "SUBSCRIBE") {
		if _, ok := v.(resp.Array); ok {
			return s.follow(ctx)
		}
	}
	if _, ok := v.(resp.Error); ok {
		return cli.Exit("", 1)
	}
	return nil
}

// follow prints pushed messages until ctx is cancelled.
func (s *session) follow(ctx context.Context) error {
	for {
		v, err := s.conns.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return cli.Exit(fmt.Sprintf("error: %v", err), 1)
		}
		s.printReply(v)
	}
}

func runREPL(ctx context.Context, s *session, in io.Reader) error {
	if in == nil {
		in = os.Stdin
	}

	historyFile := s.cfg.HistoryFile
	if historyFile == "" {
		historyFile = repl.DefaultHistoryFile()
	}

	r := repl.New(s.conns, repl.Config{
		In:      in,
		Out:     s.out,
		Prompt:  s.cfg.Addr() + "> ",
		Raw:     s.raw,
		History: repl.NewHistory(historyFile, repl.DefaultHistorySize),
	})
	return r.Run(ctx)
}

func (s *session) printReply(v resp.Value) {
	if s.raw {
		output.FormatRaw(s.out, v)
		return
	}
	output.FormatReply(s.out, v)
}
