package lifecycle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ConfirmToken is the exact affirmative an operator must type before a
// destructive operation proceeds. Anything else aborts with no side
// effects.
const ConfirmToken = "yes"

// Confirmer gates destructive operations. Abstracted so automated
// tests and --yes can supply a fixed answer without interactive input.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// TerminalConfirmer asks on the controlling terminal.
type TerminalConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// NewTerminalConfirmer creates a confirmer on stdin/stdout.
func NewTerminalConfirmer() *TerminalConfirmer {
	return &TerminalConfirmer{In: os.Stdin, Out: os.Stdout}
}

// Confirm prints the prompt and reads one line; only the exact token
// counts as approval.
func (c *TerminalConfirmer) Confirm(prompt string) (bool, error) {
	fmt.Fprint(c.Out, prompt)
	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("failed to read confirmation: %w", err)
	}
	return strings.TrimSpace(line) == ConfirmToken, nil
}

// StaticConfirmer answers every prompt the same way. Used by --yes.
type StaticConfirmer struct {
	Answer bool
}

// Confirm returns the fixed answer.
func (c *StaticConfirmer) Confirm(string) (bool, error) {
	return c.Answer, nil
}
