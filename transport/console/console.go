// Package console drives the session engine from a terminal, one line per event.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"tastebalance"
	"tastebalance/session"
)

const helpText = `Commands:
  /photo <path>     send a photo from disk
  /button <action>  press a button, e.g. /button edit_item:0
  /dump             print the current session
  /quit             exit
Any other /command is sent as a button, anything else as text.`

// Messenger prints replies and their buttons.
type Messenger struct {
	mu sync.Mutex
	w  io.Writer
}

func NewMessenger(w io.Writer) *Messenger {
	return &Messenger{w: w}
}

func (m *Messenger) Send(ctx context.Context, userID int64, r session.Reply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := fmt.Fprintf(m.w, "\n%s\n", r.Text); err != nil {
		return err
	}
	for _, row := range r.Buttons {
		labels := make([]string, 0, len(row))
		for _, b := range row {
			labels = append(labels, fmt.Sprintf("[%s → %s]", b.Label, b.Action))
		}
		if _, err := fmt.Fprintln(m.w, "  "+strings.Join(labels, " ")); err != nil {
			return err
		}
	}
	return nil
}

// FeedbackPrinter is the operator sink used when no real channel is configured.
type FeedbackPrinter struct {
	W io.Writer
}

func (p FeedbackPrinter) Forward(ctx context.Context, fb session.Feedback) error {
	_, err := fmt.Fprintf(p.W, "\n[operators] %s\n", fb.Format())
	return err
}

type REPL struct {
	engine *session.Engine
	userID int64
	in     io.Reader
	out    io.Writer
	read   func(path string) ([]byte, error)
}

func NewREPL(engine *session.Engine, userID int64, in io.Reader, out io.Writer) *REPL {
	return &REPL{engine: engine, userID: userID, in: in, out: out, read: os.ReadFile}
}

// Run processes lines until EOF, /quit or ctx is done.
func (r *REPL) Run(ctx context.Context) error {
	fmt.Fprintln(r.out, helpText)

	scanner := bufio.NewScanner(r.in)
	for {
		fmt.Fprint(r.out, "\n> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}
		if !r.dispatch(ctx, strings.TrimSpace(scanner.Text())) {
			return nil
		}
	}
}

func (r *REPL) dispatch(ctx context.Context, line string) bool {
	if line == "" {
		return true
	}
	if !strings.HasPrefix(line, "/") {
		r.engine.OnText(ctx, r.userID, line)
		return true
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "quit", "exit":
		return false
	case "photo":
		if arg == "" {
			fmt.Fprintln(r.out, "usage: /photo <path>")
			return true
		}
		r.engine.OnPhoto(ctx, r.userID, func(context.Context) ([]byte, error) {
			return r.read(arg)
		})
	case "button":
		r.engine.OnButton(ctx, r.userID, arg)
	case "dump":
		s, ok := r.engine.Store().Snapshot(r.userID)
		if !ok {
			fmt.Fprintln(r.out, "no session")
			return true
		}
		tastebalance.Dump(r.out, s)
	case "?":
		fmt.Fprintln(r.out, helpText)
	default:
		r.engine.OnButton(ctx, r.userID, cmd)
	}
	return true
}
