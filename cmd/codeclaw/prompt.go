package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/flemzord/codeclaw/internal/approval"
)

// prompter asks the user to decide an approval request.
type prompter interface {
	Confirm(req approval.Request) (bool, error)
}

// huhPrompter asks with an interactive confirm field.
type huhPrompter struct{}

func (huhPrompter) Confirm(req approval.Request) (bool, error) {
	approved := false
	err := huh.NewConfirm().
		Title(fmt.Sprintf("Allow %s?", req.ToolName)).
		Affirmative("Approve").
		Negative("Reject").
		Value(&approved).
		Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return approved, err
}

// linePrompter reads a y/N answer from a non-interactive input.
type linePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func (p linePrompter) Confirm(req approval.Request) (bool, error) {
	fmt.Fprintf(p.out, "Allow %s? [y/N] ", req.ToolName)
	answer, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
