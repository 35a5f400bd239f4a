package recorder

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/seleknir/webrecorder/internal/browser"
)

// TerminalOperator is the console-backed human channel. Secrets are read
// without echo when stdin is a terminal.
type TerminalOperator struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

var _ browser.Operator = (*TerminalOperator)(nil)

// NewTerminalOperator builds an operator over stdin/stdout.
func NewTerminalOperator() *TerminalOperator {
	return &TerminalOperator{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stdout,
		fd:  int(os.Stdin.Fd()),
	}
}

// Prompt asks for a value with echo. An empty answer is a deliberate skip.
func (o *TerminalOperator) Prompt(prompt string) (string, error) {
	fmt.Fprintf(o.out, ">> %s: ", prompt)
	line, err := o.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// PromptSecret asks for a value without echoing it.
func (o *TerminalOperator) PromptSecret(prompt string) (string, error) {
	fmt.Fprintf(o.out, ">> %s: ", prompt)
	if term.IsTerminal(o.fd) {
		secret, err := term.ReadPassword(o.fd)
		fmt.Fprintln(o.out)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	// Piped input (tests, scripts) cannot suppress echo.
	line, err := o.in.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Confirm blocks until the operator presses enter.
func (o *TerminalOperator) Confirm(prompt string) error {
	fmt.Fprintf(o.out, "\n%s\n>> %s. Press ENTER to continue...", strings.Repeat("=", 40), prompt)
	if _, err := o.in.ReadString('\n'); err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	return nil
}
