package prompt

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmModel struct {
	question string
	answer   bool
	done     bool
	aborted  bool
}

func newConfirmModel(question string) confirmModel {
	return confirmModel{question: question}
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "y", "Y", "enter":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n", "N":
		m.answer, m.done = false, true
		return m, tea.Quit
	case "ctrl+c", "esc":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	q := questionStyle.Render("? " + m.question)
	switch {
	case m.aborted:
		return q + "\n"
	case m.done && m.answer:
		return q + " " + answerStyle.Render("Yes") + "\n"
	case m.done:
		return q + " " + answerStyle.Render("No") + "\n"
	}
	return q + " " + hintStyle.Render("(Y/n)") + " "
}

type inputModel struct {
	question string
	def      string
	input    textinput.Model
	done     bool
	aborted  bool
}

func newInputModel(question, def string) inputModel {
	ti := textinput.New()
	ti.Placeholder = def
	ti.Prompt = ""
	ti.Focus()
	return inputModel{question: question, def: def, input: ti}
}

func (m inputModel) Init() tea.Cmd { return textinput.Blink }

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	q := questionStyle.Render("? " + m.question)
	if m.done {
		return q + " " + answerStyle.Render(m.result()) + "\n"
	}
	return q + " " + hintStyle.Render("("+m.def+")") + " " + m.input.View()
}

func (m inputModel) result() string {
	if v := m.input.Value(); v != "" {
		return v
	}
	return m.def
}
