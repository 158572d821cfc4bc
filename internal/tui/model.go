package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/lacquerai/laqcore/pkg/events"
)

// stepNode tracks one step path's latest known state for rendering.
type stepNode struct {
	path      string
	stepType  string
	running   bool
	success   bool
	done      bool
	startedAt time.Time
	duration  time.Duration
}

// model is the bubbletea model driving the live step tree.
type model struct {
	workflowName string
	nodes        map[string]*stepNode
	order        []string
	finished     bool
	finalSuccess bool
	spinnerFrame int
}

// eventMsg wraps one ExecutionEvent as a bubbletea message.
type eventMsg events.ExecutionEvent

// tickMsg drives the running-step spinner animation.
type tickMsg time.Time

func newModel(workflowName string) model {
	return model{workflowName: workflowName, nodes: make(map[string]*stepNode)}
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(120*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(events.ExecutionEvent(msg))
		return m, nil
	case tickMsg:
		m.spinnerFrame++
		if m.finished {
			return m, nil
		}
		return m, tick()
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" || msg.String() == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *model) apply(e events.ExecutionEvent) {
	switch e.Type {
	case events.EventWorkflowCompleted:
		m.finished = true
		m.finalSuccess = e.Success
		return
	}

	if e.StepPath == "" {
		return
	}

	node, ok := m.nodes[e.StepPath]
	if !ok {
		node = &stepNode{path: e.StepPath, stepType: e.StepType}
		m.nodes[e.StepPath] = node
		m.order = append(m.order, e.StepPath)
	}

	switch e.Type {
	case events.EventStepStarted:
		node.running = true
		node.startedAt = e.Timestamp
	case events.EventStepCompleted:
		node.running = false
		node.done = true
		node.success = e.Success
		node.duration = time.Duration(e.DurationMS) * time.Millisecond
	}
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.workflowName) + "\n")

	sorted := append([]string(nil), m.order...)
	sort.Strings(sorted)

	spinnerFrames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

	for _, path := range sorted {
		n := m.nodes[path]
		var icon, line string
		switch {
		case n.running:
			icon = runningStyle.Render(spinnerFrames[m.spinnerFrame%len(spinnerFrames)])
		case n.done && n.success:
			icon = successStyle.Render(successIcon)
		case n.done && !n.success:
			icon = errorStyle.Render(errorIcon)
		default:
			icon = mutedStyle.Render(runningIcon)
		}
		line = fmt.Sprintf("%s %s %s", icon, path, mutedStyle.Render(n.duration.Round(time.Millisecond).String()))
		b.WriteString(line + "\n")
	}

	if m.finished {
		if m.finalSuccess {
			b.WriteString(successStyle.Render("workflow completed") + "\n")
		} else {
			b.WriteString(errorStyle.Render("workflow failed") + "\n")
		}
	}

	return b.String()
}
