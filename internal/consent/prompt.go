package consent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// TerminalPrompter asks for a consent preset on an interactive terminal.
// When stdin is not a terminal it answers essential-only so unattended
// runs never hang on the prompt.
type TerminalPrompter struct {
	In     io.Reader
	Out    io.Writer
	Logger *slog.Logger

	// isTerminal is overridable for tests; defaults to checking stdin.
	isTerminal func() bool
}

// NewTerminalPrompter creates a prompter on stdin/stdout.
func NewTerminalPrompter(logger *slog.Logger) *TerminalPrompter {
	return &TerminalPrompter{
		In:     os.Stdin,
		Out:    os.Stdout,
		Logger: logger,
		isTerminal: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd()))
		},
	}
}

// Ask implements Prompter.
func (p *TerminalPrompter) Ask(ctx context.Context) (Choice, error) {
	if p.isTerminal != nil && !p.isTerminal() {
		p.Logger.Debug("stdin is not a terminal, defaulting to essential-only consent")
		return ChoiceEssentialOnly, nil
	}

	fmt.Fprintln(p.Out, "Privacy settings")
	fmt.Fprintln(p.Out, "Contact buttons work regardless of your choice.")
	fmt.Fprintln(p.Out, "  [1] Accept all")
	fmt.Fprintln(p.Out, "  [2] Essential only")
	fmt.Fprintln(p.Out, "  [3] Settings (analytics, no marketing)")
	fmt.Fprint(p.Out, "Choice [1-3]: ")

	type answer struct {
		choice Choice
		err    error
	}
	ch := make(chan answer, 1)
	go func() {
		reader := bufio.NewReader(p.In)
		line, err := reader.ReadString('\n')
		if err != nil {
			ch <- answer{err: fmt.Errorf("failed to read consent choice: %w", err)}
			return
		}
		switch strings.TrimSpace(line) {
		case "2":
			ch <- answer{choice: ChoiceEssentialOnly}
		case "3":
			ch <- answer{choice: ChoiceSettings}
		default:
			ch <- answer{choice: ChoiceAcceptAll}
		}
	}()

	select {
	case <-ctx.Done():
		return ChoiceEssentialOnly, ctx.Err()
	case a := <-ch:
		return a.choice, a.err
	}
}

// StaticPrompter always answers with a fixed choice. Useful for embedded
// hosts that render their own banner and for tests.
type StaticPrompter struct {
	Choice Choice
}

// Ask implements Prompter.
func (p StaticPrompter) Ask(context.Context) (Choice, error) {
	return p.Choice, nil
}
