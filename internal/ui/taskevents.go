package ui

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// TaskEventRenderer drains an EventChannel and renders each Event as a line
// of text (spec.md §4.15: "Consumer: the renderer (external)"). Unlike the
// indexing Renderer above, there is no bubbletea model here — a streaming
// agent session reads as a scrolling transcript, not a progress dashboard,
// so plain line rendering (colorized when the output is a TTY) is the
// whole of it.
type TaskEventRenderer struct {
	mu      sync.Mutex
	out     io.Writer
	styles  Styles
	noColor bool
	verbose bool
}

// NewTaskEventRenderer constructs a TaskEventRenderer writing to out.
func NewTaskEventRenderer(out io.Writer, noColor bool) *TaskEventRenderer {
	return &TaskEventRenderer{
		out:     out,
		styles:  GetStyles(noColor),
		noColor: noColor,
	}
}

// WithVerbose toggles whether per-step and per-tool-call events render.
// With verbose off, only task-level started/progress/output/completed/failed
// and system messages print — the default transcript a request produces.
func (r *TaskEventRenderer) WithVerbose(verbose bool) *TaskEventRenderer {
	r.verbose = verbose
	return r
}

// Run drains ch until its Events channel is closed, rendering each Event as
// it arrives. It returns once the channel is drained, so callers typically
// run it in its own goroutine alongside task execution.
func (r *TaskEventRenderer) Run(ch *EventChannel) {
	for ev := range ch.Events() {
		r.render(ev)
	}
}

func (r *TaskEventRenderer) render(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case EventTaskStarted:
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Header.Render("▶"), taskLabel(ev.TaskID))

	case EventTaskProgress:
		p := ev.Progress
		var suffix string
		if p.Total != nil {
			suffix = fmt.Sprintf(" (%d/%d)", p.Current, *p.Total)
		}
		_, _ = fmt.Fprintf(r.out, "  %s%s%s\n", r.styles.Stage.Render(p.Stage), suffix, progressMessage(p.Message))

	case EventTaskOutput:
		_, _ = fmt.Fprintf(r.out, "%s\n", indent(ev.Output))

	case EventTaskStepStarted:
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Dim.Render("→"), ev.StepID)
		}

	case EventTaskStepCompleted:
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "  %s %s\n", r.styles.Success.Render("✓"), ev.StepID)
		}

	case EventTaskStepFailed:
		// step failures always render even when not verbose: they're why a
		// task ultimately fails, not routine progress noise.
		_, _ = fmt.Fprintf(r.out, "  %s %s: %s\n", r.styles.Error.Render("✗"), ev.StepID, ev.Error)

	case EventTaskCompleted:
		_, _ = fmt.Fprintf(r.out, "%s %s\n", r.styles.Success.Render("✓"), taskLabel(ev.TaskID))

	case EventTaskFailed:
		_, _ = fmt.Fprintf(r.out, "%s %s: %s\n", r.styles.Error.Render("✗"), taskLabel(ev.TaskID), ev.Error)

	case EventToolCallStarted:
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "  %s calling %s\n", r.styles.Dim.Render("⚙"), ev.StepType)
		}

	case EventToolCallCompleted:
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "  %s %s done\n", r.styles.Dim.Render("⚙"), ev.StepType)
		}

	case EventSystemMessage:
		style := r.styles.Dim
		if ev.Level == "warn" {
			style = r.styles.Warning
		} else if ev.Level == "error" {
			style = r.styles.Error
		}
		_, _ = fmt.Fprintf(r.out, "%s\n", style.Render(ev.Message))
	}
}

func taskLabel(taskID string) string {
	if taskID == "" {
		return "task"
	}
	return "task " + taskID
}

func progressMessage(msg string) string {
	if msg == "" {
		return ""
	}
	return ": " + msg
}

func indent(s string) string {
	if s == "" {
		return ""
	}
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
