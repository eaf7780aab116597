package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dshills/rulebook/internal/app"
	"github.com/dshills/rulebook/internal/rules/notify"
)

const consoleHelp = `Type a rules command, with or without the namespace:
  <ns>                        show changed rules and categories
  <ns> list [tag]             list rules
  <ns> <rule> [value]         show or change a rule
  <ns> setDefault <rule> <v>  change a rule and keep it in the rules file
  <ns> removeDefault <rule>   drop a rule from the rules file
Console commands: reload, stats, help, quit (or Ctrl-D)`

func runConsole(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, *cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown(context.Background())

	runErr := make(chan error, 1)
	go func() { runErr <- application.Run(ctx) }()

	c := newConsole(application, cmd.InOrStdin(), cmd.OutOrStdout())
	restore, err := c.start()
	if err != nil {
		return err
	}
	defer restore()

	loopErr := make(chan error, 1)
	go func() { loopErr <- c.loop(ctx) }()

	select {
	case err = <-loopErr:
	case err = <-runErr:
	case <-ctx.Done():
	}
	return err
}

// console reads command lines and runs them as the console actor.
type console struct {
	app   *app.App
	actor notify.Actor
	in    io.Reader
	out   io.Writer

	terminal *term.Terminal
}

func newConsole(a *app.App, in io.Reader, out io.Writer) *console {
	return &console{app: a, actor: notify.ConsoleActor, in: in, out: out}
}

// start switches an interactive stdin to raw mode and installs the line
// editor. The returned function restores the terminal.
func (c *console) start() (func(), error) {
	f, ok := c.in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}, nil
	}

	fd := int(f.Fd())
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("entering raw mode: %w", err)
	}

	rw := struct {
		io.Reader
		io.Writer
	}{c.in, c.out}
	c.terminal = term.NewTerminal(rw, c.app.Registry().Namespace()+"> ")
	c.terminal.AutoCompleteCallback = c.autoComplete
	c.out = c.terminal
	// raw mode needs \r\n, which the terminal writer adds
	c.app.Logger().SetOutput(c.terminal)

	return func() {
		c.app.Logger().SetOutput(os.Stderr)
		term.Restore(fd, state)
	}, nil
}

func (c *console) loop(ctx context.Context) error {
	if c.terminal != nil {
		fmt.Fprintln(c.out, "type help for commands")
		for {
			line, err := c.terminal.ReadLine()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				return err
			}
			if c.handle(ctx, line) {
				return nil
			}
		}
	}

	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		if c.handle(ctx, scanner.Text()) {
			return nil
		}
	}
	return scanner.Err()
}

// handle runs one line and reports whether the console should exit.
func (c *console) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return false
	case "quit", "exit":
		return true
	case "help":
		fmt.Fprintln(c.out, consoleHelp)
		return false
	case "reload":
		if err := c.app.Reload(); err != nil {
			fmt.Fprintf(c.out, "reload failed: %v\n", err)
		} else {
			fmt.Fprintln(c.out, "reloaded")
		}
		return false
	case "stats":
		c.stats()
		return false
	}

	out, err := c.app.Execute(ctx, c.actor, line)
	if s := out.String(); s != "" {
		fmt.Fprintln(c.out, s)
	}
	if err != nil {
		c.app.Logger().Debug("command %q: %v", line, err)
	}
	return false
}

func (c *console) stats() {
	m := c.app.Metrics().Snapshot()
	fmt.Fprintf(c.out, "changes: %d (%d from console)\n", m.Changes, m.ConsoleChanges)
	fmt.Fprintf(c.out, "reloads: %d (%d failed)\n", m.Reloads, m.ReloadFailures)
	if !m.LastChange.IsZero() {
		fmt.Fprintf(c.out, "last change: %s\n", m.LastChange.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(c.out, "uptime: %s\n", m.Uptime.Round(time.Second))
}

// autoComplete completes the word before the cursor on tab. A single
// suggestion is inserted; several are listed and their common prefix is
// inserted.
func (c *console) autoComplete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' {
		return "", 0, false
	}
	head, tail := line[:pos], line[pos:]
	suggestions := c.app.Complete(c.actor, head)
	if len(suggestions) == 0 {
		return "", 0, false
	}

	start := strings.LastIndexByte(head, ' ') + 1
	word := head[start:]
	insert := suggestions[0] + " "
	if len(suggestions) > 1 {
		fmt.Fprintln(c.out, strings.Join(suggestions, "  "))
		insert = commonPrefix(suggestions)
		if len(insert) <= len(word) || !strings.HasPrefix(strings.ToLower(insert), strings.ToLower(word)) {
			return "", 0, false
		}
	}

	newHead := head[:start] + insert
	return newHead + tail, len(newHead), true
}

func commonPrefix(words []string) string {
	prefix := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}
	return prefix
}
