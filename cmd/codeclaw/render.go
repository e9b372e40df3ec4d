package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/flemzord/codeclaw/internal/tool"
	"github.com/flemzord/codeclaw/internal/transcript"
)

// outputPreviewLines is how much of a tool output is echoed.
const outputPreviewLines = 8

var (
	styleUser      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	styleReasoning = lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("8"))
	styleTool      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	styleApproval  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleOutput    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleError     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// renderer writes transcript events as a console transcript.
type renderer struct {
	w    io.Writer
	last uint64

	// mode is the kind of delta last written, so a switch between text and
	// reasoning starts a new line.
	mode transcript.EventType
	col  bool

	// skipUser suppresses user messages, which the console already shows
	// as typed input.
	skipUser bool
	skipping string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

// Render writes ev unless it was already rendered.
func (r *renderer) Render(ev transcript.Event) {
	if ev.Seq != 0 && ev.Seq <= r.last {
		return
	}
	r.last = ev.Seq

	switch ev.Type {
	case transcript.EventMessageStart:
		if ev.Role == transcript.RoleUser && r.skipUser {
			r.skipping = ev.MessageID
			return
		}
		r.newline()
		if ev.Role == transcript.RoleUser {
			r.print(styleUser.Render("you ›") + " ")
			r.mode = transcript.EventTextDelta
		}
	case transcript.EventTextDelta:
		if ev.MessageID == r.skipping {
			return
		}
		r.switchMode(ev.Type)
		r.print(ev.Delta)
	case transcript.EventReasoningDelta:
		r.switchMode(ev.Type)
		r.print(styleReasoning.Render(ev.Delta))
	case transcript.EventToolCallStateChange:
		r.stateChange(ev)
	case transcript.EventMessageEnd:
		if ev.MessageID == r.skipping {
			r.skipping = ""
			return
		}
		r.newline()
		r.mode = ""
	}
}

func (r *renderer) stateChange(ev transcript.Event) {
	switch ev.State {
	case tool.StateInputAvailable:
		r.line(styleTool.Render("● "+string(ev.ToolName)) + " " + string(ev.Input))
	case tool.StateApprovalRequested:
		summary := ""
		if ev.Approval != nil {
			summary = ev.Approval.Summary
		}
		r.line(styleApproval.Render("approval required for " + string(ev.ToolName) + ":"))
		r.line(summary)
	case tool.StateApproved:
		r.line(styleApproval.Render("  approved"))
	case tool.StateRejected:
		r.line(styleApproval.Render("  rejected"))
	case tool.StateOutputAvailable:
		if ev.Output != nil {
			r.line(styleOutput.Render(preview(ev.Output.Content)))
		}
	case tool.StateOutputError:
		r.line(styleError.Render("  error: " + ev.ErrorText))
	}
}

// switchMode starts a new line when the delta kind changes.
func (r *renderer) switchMode(t transcript.EventType) {
	if r.mode != "" && r.mode != t {
		r.newline()
	}
	r.mode = t
}

func (r *renderer) line(s string) {
	r.newline()
	r.print(s + "\n")
	r.mode = ""
}

func (r *renderer) newline() {
	if r.col {
		r.print("\n")
	}
}

func (r *renderer) print(s string) {
	if s == "" {
		return
	}
	fmt.Fprint(r.w, s)
	r.col = !strings.HasSuffix(s, "\n")
}

// preview indents the first lines of a tool output.
func preview(content string) string {
	lines := strings.Split(strings.TrimRight(content, "\n"), "\n")
	more := 0
	if len(lines) > outputPreviewLines {
		more = len(lines) - outputPreviewLines
		lines = lines[:outputPreviewLines]
	}
	for i, l := range lines {
		lines[i] = "  " + l
	}
	if more > 0 {
		lines = append(lines, fmt.Sprintf("  … %d more lines", more))
	}
	return strings.Join(lines, "\n")
}
