package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pipelineDoneMsg struct {
	value any
	err   error
}

type pipelineSpinnerModel struct {
	spinner spinner.Model
	label   string
	run     tea.Cmd
	value   any
	err     error
	done    bool
}

func newPipelineSpinnerModel(label string, run tea.Cmd) pipelineSpinnerModel {
	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
	)

	return pipelineSpinnerModel{
		spinner: s,
		label:   label,
		run:     run,
	}
}

func (m pipelineSpinnerModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run)
}

func (m pipelineSpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case pipelineDoneMsg:
		m.done = true
		m.value = msg.value
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m pipelineSpinnerModel) View() string {
	if m.done {
		return ""
	}

	return fmt.Sprintf("%s %s", m.spinner.View(), m.label)
}

// runWithSpinner shows label on output while run blocks. With quiet set, run
// is called directly.
func runWithSpinner[T any](ctx context.Context, output io.Writer, label string, quiet bool, run func(context.Context) (T, error)) (T, error) {
	if quiet {
		return run(ctx)
	}

	runCmd := func() tea.Msg {
		value, err := run(ctx)
		return pipelineDoneMsg{value: value, err: err}
	}

	p := tea.NewProgram(
		newPipelineSpinnerModel(label, runCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	var zero T
	finalModel, err := p.Run()
	if err != nil {
		return zero, err
	}

	result, ok := finalModel.(pipelineSpinnerModel)
	if !ok {
		return zero, fmt.Errorf("unexpected final spinner model type %T", finalModel)
	}
	if result.err != nil {
		return zero, result.err
	}

	value, _ := result.value.(T)
	return value, nil
}
