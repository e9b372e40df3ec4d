package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/flemzord/codeclaw/internal/approval"
	"github.com/flemzord/codeclaw/internal/session"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// followBuffer is the live event buffer of the console subscriber.
const followBuffer = 1024

func chatCmd(flags *globalFlags) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to the agent, interactively or with a single message",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := openApp(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			in := bufio.NewReader(cmd.InOrStdin())
			c := &chat{
				out:      cmd.OutOrStdout(),
				in:       in,
				requests: make(chan approval.Request, 8),
				prompt:   pickPrompter(cmd.InOrStdin(), in, cmd.OutOrStdout()),
			}
			s, err := a.NewSession(ctx, sessionID,
				[]approval.Option{approval.OnRequest(func(r approval.Request) { c.requests <- r })},
			)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := c.attach(ctx, s); err != nil {
				return err
			}
			defer c.detach()

			if len(args) > 0 {
				return c.turn(ctx, strings.Join(args, " "))
			}
			fmt.Fprintf(c.out, "session %s (type exit to quit)\n", s.ID())
			return c.loop(ctx)
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Resume or name a session")
	return cmd
}

// pickPrompter uses the interactive confirm on a terminal and plain y/N
// lines otherwise.
func pickPrompter(raw io.Reader, in *bufio.Reader, out io.Writer) prompter {
	if f, ok := raw.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return huhPrompter{}
	}
	return linePrompter{in: in, out: out}
}

// chat drives one console session. Rendering and prompting happen on the
// caller's goroutine only.
type chat struct {
	out      io.Writer
	in       *bufio.Reader
	prompt   prompter
	requests chan approval.Request

	session *session.Session
	render  *renderer
	live    <-chan transcript.Event
	detach  func()
}

// attach renders the stored history and subscribes to new events.
func (c *chat) attach(ctx context.Context, s *session.Session) error {
	past, live, cancel, err := s.Follow(ctx, 0, followBuffer)
	if err != nil {
		return err
	}
	c.session = s
	c.render = newRenderer(c.out)
	for _, ev := range past {
		c.render.Render(ev)
	}
	c.render.skipUser = true
	c.live = live
	c.detach = cancel
	return nil
}

func (c *chat) loop(ctx context.Context) error {
	for {
		fmt.Fprint(c.out, styleUser.Render("›")+" ")
		line, err := c.in.ReadString('\n')
		text := strings.TrimSpace(line)
		switch {
		case text == "exit" || text == "quit" || text == "q":
			return nil
		case text == "" && err != nil:
			fmt.Fprintln(c.out)
			return nil
		case text == "":
			continue
		}

		if err := c.turn(ctx, text); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(c.out, styleError.Render("turn failed: "+err.Error()))
		}
	}
}

// turn sends text and renders the session until the turn ends, answering
// approval requests as they come.
func (c *chat) turn(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() { done <- c.session.Send(ctx, text) }()

	for {
		select {
		case ev, ok := <-c.live:
			if !ok {
				return errors.New("chat: event stream closed")
			}
			c.render.Render(ev)
		case req := <-c.requests:
			c.drain()
			approved, err := c.prompt.Confirm(req)
			if err != nil {
				fmt.Fprintln(c.out, styleError.Render("prompt failed: "+err.Error()))
			}
			c.session.Gate().Submit(req.ID, approved && err == nil)
		case err := <-done:
			c.drain()
			return err
		}
	}
}

// drain renders whatever events are already buffered.
func (c *chat) drain() {
	for {
		select {
		case ev, ok := <-c.live:
			if !ok {
				return
			}
			c.render.Render(ev)
		default:
			return
		}
	}
}
