package tui

import (
	tea "github.com/charmbracelet/bubbletea/v2"
	"github.com/lacquerai/laqcore/pkg/events"
)

// Listener implements events.Listener by driving a bubbletea program that
// renders a live step tree.
type Listener struct {
	program *tea.Program
	done    chan struct{}
}

// NewListener builds a Listener for the named workflow.
func NewListener(workflowName string) *Listener {
	return &Listener{
		program: tea.NewProgram(newModel(workflowName)),
		done:    make(chan struct{}),
	}
}

// StartListening implements events.Listener: runs the bubbletea program in
// the background and forwards every event from ch into it.
func (l *Listener) StartListening(ch <-chan events.ExecutionEvent) {
	go func() {
		defer close(l.done)
		if _, err := l.program.Run(); err != nil {
			return
		}
	}()

	go func() {
		for e := range ch {
			l.program.Send(eventMsg(e))
		}
	}()
}

// StopListening implements events.Listener: quits the bubbletea program
// and waits for it to exit.
func (l *Listener) StopListening() {
	l.program.Quit()
	<-l.done
}
