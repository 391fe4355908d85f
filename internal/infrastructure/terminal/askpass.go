package terminal

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const ttyPath = "/dev/tty"

// TTYPrompter reads a password from the controlling terminal with echo
// disabled. Standard input and output are left alone since they carry the
// tunnel.
type TTYPrompter struct {
	Path string
}

func (p TTYPrompter) Prompt(prompt string) (string, error) {
	path := p.Path
	if path == "" {
		path = ttyPath
	}

	tty, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer tty.Close()

	if _, err := fmt.Fprint(tty, prompt); err != nil {
		return "", err
	}
	pw, err := term.ReadPassword(int(tty.Fd()))
	fmt.Fprintln(tty)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}
