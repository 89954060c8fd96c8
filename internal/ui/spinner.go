// Package ui holds small terminal helpers for the CLI.
package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var frames = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const frameInterval = 100 * time.Millisecond

// Spinner animates a status line while a step runs. When out is not a
// terminal it prints the message once instead.
type Spinner struct {
	out io.Writer
	tty bool

	mu      sync.Mutex
	message string
	running bool
	quit    chan struct{}
	exited  chan struct{}
}

// NewSpinner returns a stopped spinner writing to out.
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:     out,
		tty:     isTerminal(out) && os.Getenv("NO_COLOR") == "",
		message: message,
	}
}

// Start is a no-op while the spinner is already running.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.quit = make(chan struct{})
	s.exited = make(chan struct{})

	if !s.tty {
		fmt.Fprintf(s.out, "%s...\n", s.message)
		close(s.exited)
		return
	}
	go s.loop(s.quit, s.exited)
}

func (s *Spinner) loop(quit <-chan struct{}, exited chan<- struct{}) {
	defer close(exited)
	tick := time.NewTicker(frameInterval)
	defer tick.Stop()

	for n := 0; ; n++ {
		select {
		case <-quit:
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-tick.C:
			s.mu.Lock()
			fmt.Fprintf(s.out, "\r%s %s", frames[n%len(frames)], s.message)
			s.mu.Unlock()
		}
	}
}

// Stop clears the line, then prints final if it is not empty.
func (s *Spinner) Stop(final string) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	quit, exited := s.quit, s.exited
	s.mu.Unlock()

	close(quit)
	<-exited
	if final != "" {
		fmt.Fprintln(s.out, final)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Run shows a spinner while fn runs and returns fn's error.
func Run(out io.Writer, message string, fn func() error) error {
	sp := NewSpinner(out, message)
	sp.Start()
	defer sp.Stop("")
	return fn()
}
