// Package prompt asks the operator questions on a terminal and prints
// styled status lines.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrAborted is returned when the operator quits a prompt with ctrl+c/esc.
var ErrAborted = errors.New("prompt: aborted")

// Terminal runs interactive prompts as bubbletea programs.
type Terminal struct {
	in  io.Reader
	out io.Writer
}

// NewTerminal creates a Terminal reading keys from in and drawing to out.
func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: in, out: out}
}

func (t *Terminal) run(ctx context.Context, m tea.Model) (tea.Model, error) {
	p := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	final, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("prompt: %w", err)
	}
	return final, nil
}

// Confirm asks a yes/no question. Enter accepts the default, yes.
func (t *Terminal) Confirm(ctx context.Context, question string) (bool, error) {
	final, err := t.run(ctx, newConfirmModel(question))
	if err != nil {
		return false, err
	}
	m := final.(confirmModel)
	if m.aborted {
		return false, ErrAborted
	}
	return m.answer, nil
}

// Input asks for a line of text, returning def when the answer is empty.
func (t *Terminal) Input(ctx context.Context, question, def string) (string, error) {
	final, err := t.run(ctx, newInputModel(question, def))
	if err != nil {
		return "", err
	}
	m := final.(inputModel)
	if m.aborted {
		return "", ErrAborted
	}
	return m.result(), nil
}

// Scripted answers confirmations from a fixed list, for tests and for
// unattended runs. Once Answers is exhausted it returns Default.
type Scripted struct {
	mu      sync.Mutex
	Answers []bool
	Default bool
	prompts []string
}

// Always returns a Scripted that gives the same answer to every question.
func Always(answer bool) *Scripted {
	return &Scripted{Default: answer}
}

func (s *Scripted) Confirm(ctx context.Context, question string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, question)
	if len(s.Answers) == 0 {
		return s.Default, nil
	}
	answer := s.Answers[0]
	s.Answers = s.Answers[1:]
	return answer, nil
}

// Prompts returns the questions asked so far.
func (s *Scripted) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}
