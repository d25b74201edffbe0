// Copyright (C) 2025 eulerianKnight
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// =============================================================================
// InputReader Interface
// =============================================================================

// InputReader abstracts user input reading for testability.
//
// # Description
//
// Enables mocking of stdin in unit tests. The production implementation
// wraps bufio.Reader; the interactive implementation adds history
// navigation via bubbletea.
//
// # Outputs
//
// ReadLine returns the trimmed line read, or io.EOF when input is
// exhausted.
type InputReader interface {
	// ReadLine reads a single line of input. Blocks until input is
	// available; returns io.EOF when the source is exhausted.
	ReadLine() (string, error)
}

// =============================================================================
// StdinReader Implementation
// =============================================================================

// StdinReader implements InputReader for piped input and CI.
type StdinReader struct {
	reader *bufio.Reader
}

// NewStdinReader creates a StdinReader wrapping os.Stdin.
func NewStdinReader() *StdinReader {
	return &StdinReader{reader: bufio.NewReader(os.Stdin)}
}

// ReadLine reads a single newline-terminated line from stdin.
func (r *StdinReader) ReadLine() (string, error) {
	line, err := r.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// =============================================================================
// InteractiveInputReader Implementation (with history)
// =============================================================================

// InteractiveInputReader implements InputReader with up-arrow history.
//
// # Description
//
// Uses charmbracelet/bubbletea for line editing and in-memory history
// navigation. Falls back to StdinReader for non-TTY environments
// (piped input, CI).
//
// # Thread Safety
//
// Not thread-safe. Single reader per stdin.
//
// # Limitations
//
//   - History is in-memory only, not persisted across sessions
type InteractiveInputReader struct {
	history    []string
	maxHistory int
	prompt     string
}

// NewInteractiveInputReader creates an interactive reader, or a plain
// StdinReader when stdin is not a terminal.
func NewInteractiveInputReader(maxHistory int, prompt string) InputReader {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return NewStdinReader()
	}
	return &InteractiveInputReader{
		history:    make([]string, 0, maxHistory),
		maxHistory: maxHistory,
		prompt:     prompt,
	}
}

// chatInputModel is the bubbletea model for one line of chat input.
type chatInputModel struct {
	textInput    textinput.Model
	history      []string
	historyIndex int
	currentInput string
	done         bool
	cancelled    bool
}

// ReadLine reads a single line with history support.
//
// Up/down arrows navigate history, Enter submits, Ctrl+C clears the
// current line, Ctrl+D returns io.EOF.
func (r *InteractiveInputReader) ReadLine() (string, error) {
	ti := textinput.New()
	ti.Prompt = r.prompt
	ti.Focus()
	ti.CharLimit = 4096
	ti.Width = 80

	m := chatInputModel{
		textInput:    ti,
		history:      r.history,
		historyIndex: -1,
	}

	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	result, ok := finalModel.(chatInputModel)
	if !ok {
		return "", fmt.Errorf("unexpected model type from bubbletea: %T", finalModel)
	}

	if result.cancelled && result.textInput.Value() == "" {
		return "", io.EOF
	}

	input := strings.TrimSpace(result.textInput.Value())
	if input != "" {
		r.addToHistory(input)
	}
	return input, nil
}

// addToHistory appends an input, skipping consecutive duplicates.
func (r *InteractiveInputReader) addToHistory(input string) {
	if len(r.history) > 0 && r.history[len(r.history)-1] == input {
		return
	}
	r.history = append(r.history, input)
	if len(r.history) > r.maxHistory {
		r.history = r.history[1:]
	}
}

// Init initializes the bubbletea model.
func (m chatInputModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles input events for the bubbletea model.
func (m chatInputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlC:
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyCtrlD:
			m.cancelled = true
			m.textInput.SetValue("")
			m.done = true
			return m, tea.Quit

		case tea.KeyUp:
			if len(m.history) == 0 {
				return m, nil
			}
			if m.historyIndex == -1 {
				m.currentInput = m.textInput.Value()
				m.historyIndex = len(m.history) - 1
			} else if m.historyIndex > 0 {
				m.historyIndex--
			}
			m.textInput.SetValue(m.history[m.historyIndex])
			m.textInput.CursorEnd()
			return m, nil

		case tea.KeyDown:
			if m.historyIndex == -1 {
				return m, nil
			}
			if m.historyIndex < len(m.history)-1 {
				m.historyIndex++
				m.textInput.SetValue(m.history[m.historyIndex])
			} else {
				m.historyIndex = -1
				m.textInput.SetValue(m.currentInput)
			}
			m.textInput.CursorEnd()
			return m, nil
		}
	}

	m.textInput, cmd = m.textInput.Update(msg)
	return m, cmd
}

// View renders the input prompt.
func (m chatInputModel) View() string {
	if m.done {
		return ""
	}
	return m.textInput.View()
}

// =============================================================================
// MockInputReader Implementation (for testing)
// =============================================================================

// MockInputReader returns predetermined inputs, then io.EOF.
type MockInputReader struct {
	inputs []string
	index  int
}

// NewMockInputReader creates a MockInputReader with fixed inputs.
func NewMockInputReader(inputs []string) *MockInputReader {
	return &MockInputReader{inputs: inputs}
}

// ReadLine returns the next predetermined input.
func (m *MockInputReader) ReadLine() (string, error) {
	if m.index >= len(m.inputs) {
		return "", io.EOF
	}
	line := m.inputs[m.index]
	m.index++
	return line, nil
}

// =============================================================================
// ChatRunner
// =============================================================================

// ChatRunnerConfig configures an AnalyticsChatRunner.
type ChatRunnerConfig struct {
	// SessionID resumes an existing conversation. Empty starts a new one.
	SessionID string

	// Out is where responses are rendered (default os.Stdout).
	Out io.Writer
}

// AnalyticsChatRunner runs the interactive question/answer loop.
//
// # Description
//
// Reads natural-language questions, sends them to the backend through
// an AnalyticsClient, and renders the insights, generated SQL, and
// follow-up suggestions. The session ID is generated client-side and
// reused for every question so the backend threads the conversation.
//
// # Limitations
//
//   - One in-flight question at a time
//
// # Assumptions
//
//   - The client is already authenticated
type AnalyticsChatRunner struct {
	client    AnalyticsClient
	reader    InputReader
	sessionID string
	out       io.Writer

	sqlStyle      lipgloss.Style
	insightStyle  lipgloss.Style
	followUpStyle lipgloss.Style
	metaStyle     lipgloss.Style
}

// NewAnalyticsChatRunner creates a chat runner.
func NewAnalyticsChatRunner(client AnalyticsClient, reader InputReader, config ChatRunnerConfig) *AnalyticsChatRunner {
	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = GenerateID()
	}
	out := config.Out
	if out == nil {
		out = os.Stdout
	}
	return &AnalyticsChatRunner{
		client:    client,
		reader:    reader,
		sessionID: sessionID,
		out:       out,

		sqlStyle:      lipgloss.NewStyle().Foreground(lipgloss.Color("6")),
		insightStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("15")),
		followUpStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Italic(true),
		metaStyle:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	}
}

// SessionID returns the conversation identifier in use.
func (r *AnalyticsChatRunner) SessionID() string {
	return r.sessionID
}

// Run executes the chat loop until exit, EOF, or context cancellation.
//
// # Outputs
//
// Returns nil on normal exit ("exit", "quit", or EOF), the context
// error on cancellation, or an unrecoverable error.
func (r *AnalyticsChatRunner) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Session: %s (resume later with --session %s)\n", r.sessionID, r.sessionID)
	fmt.Fprintln(r.out, "Ask a question about your data. Type 'exit' to leave.")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		input, err := r.reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				fmt.Fprintln(r.out, "\nGoodbye.")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}

		if input == "" {
			continue
		}
		if isExitCommand(input) {
			fmt.Fprintln(r.out, "Goodbye.")
			return nil
		}

		if err := r.ask(ctx, input); err != nil {
			if errors.Is(err, ErrAuthFailed) {
				return fmt.Errorf("session expired, please run 'convana chat' again: %w", err)
			}
			// Query errors are recoverable; show them and keep going
			fmt.Fprintf(r.out, "%s✗ %v%s\n\n", colorRed, err, colorReset)
		}
	}
}

// ask sends one question and renders the response.
func (r *AnalyticsChatRunner) ask(ctx context.Context, question string) error {
	fmt.Fprintln(r.out, r.metaStyle.Render("Thinking..."))

	resp, err := r.client.Query(ctx, question, r.sessionID)
	if err != nil {
		return err
	}

	if resp.Insights != "" {
		fmt.Fprintln(r.out)
		for _, line := range wrapText(resp.Insights, 80) {
			fmt.Fprintln(r.out, r.insightStyle.Render(line))
		}
	}

	if resp.SQLQuery != "" {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.metaStyle.Render("SQL:"))
		for _, line := range strings.Split(resp.SQLQuery, "\n") {
			fmt.Fprintln(r.out, r.sqlStyle.Render("  "+line))
		}
	}

	if len(resp.Data) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.metaStyle.Render(fmt.Sprintf("%d row(s) returned.", len(resp.Data))))
	}

	if resp.ChartRecommendation != nil && resp.ChartRecommendation.ChartType != "" {
		fmt.Fprintln(r.out, r.metaStyle.Render(
			fmt.Sprintf("Suggested chart: %s", resp.ChartRecommendation.ChartType)))
	}

	if len(resp.FollowUpSuggestions) > 0 {
		fmt.Fprintln(r.out)
		fmt.Fprintln(r.out, r.metaStyle.Render("You could also ask:"))
		for _, s := range resp.FollowUpSuggestions {
			fmt.Fprintln(r.out, r.followUpStyle.Render("  • "+s))
		}
	}

	source := "warehouse"
	if resp.FromCache {
		source = "cache"
	}
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.metaStyle.Render(
		fmt.Sprintf("(%0.2fs, from %s)", resp.ExecutionTime, source)))
	fmt.Fprintln(r.out)
	return nil
}

// isExitCommand checks if the input is an exit command.
func isExitCommand(input string) bool {
	return input == "exit" || input == "quit"
}

// loginDeadline bounds how long the initial login may take.
const loginDeadline = 30 * time.Second
