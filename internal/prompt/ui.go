// Package prompt asks the operator for values the session could not resolve from
// flags, environment or config.
package prompt

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/conn-castle/whisper-provision/internal/messages"
	"github.com/conn-castle/whisper-provision/internal/terminal"
)

var (
	// ErrCancelled is returned when the operator presses Ctrl+C in a prompt.
	ErrCancelled = errors.New(messages.PromptCancelled)
	// ErrNotInteractive is returned when a prompt is requested without a terminal.
	ErrNotInteractive = errors.New(messages.PromptRequiresTerminal)
)

// UI defines the interaction methods.
type UI interface {
	Confirm(title string, value *bool) error
	Input(title string, value *string) error
	SecretInput(title string, value *string) error
}

// HuhUI implements UI using charmbracelet/huh.
type HuhUI struct {
	isTerminal func() bool
	ctrlCAbort bool // set by key filter during form.Run(); reset before each form
}

var runFormFunc = func(form *huh.Form) error { return form.Run() }

// NewHuhUI creates a HuhUI that checks terminal.IsInteractive before each prompt.
func NewHuhUI() *HuhUI {
	return &HuhUI{isTerminal: terminal.IsInteractive}
}

// Interactive reports whether prompts can be shown.
func (ui *HuhUI) Interactive() bool {
	checker := ui.isTerminal
	if checker == nil {
		checker = terminal.IsInteractive
	}
	return checker()
}

// promptKeyMap maps Esc to "skip" and Ctrl+C to "exit". Both abort the form;
// runForm tells them apart through ctrlCAbort.
func promptKeyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("ctrl+c", "esc"))

	escSkip := key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "skip"))
	km.Confirm.Prev = escSkip
	km.Input.Prev = escSkip

	ctrlCExit := key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "exit"))
	km.Confirm.Next = ctrlCExit
	km.Input.Next = ctrlCExit
	return km
}

// hintField keeps the skip/exit hints visible. huh disables Prev and Next on the
// first and last field, which in a single-field form is always this one.
type hintField struct {
	huh.Field
	km *huh.KeyMap
}

// Update delegates to the inner field and keeps the wrapper in the group.
func (f *hintField) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	model, cmd := f.Field.Update(msg)
	if field, ok := model.(huh.Field); ok {
		f.Field = field
	}
	return f, cmd
}

// WithPosition re-applies the keymap after huh sets positional state.
func (f *hintField) WithPosition(p huh.FieldPosition) huh.Field {
	f.Field.WithPosition(p)
	f.WithKeyMap(f.km)
	return f
}

func newHintField(field huh.Field) huh.Field {
	return &hintField{Field: field, km: promptKeyMap()}
}

// formFilter flags Ctrl+C and turns InterruptMsg into QuitMsg so the renderer
// clears the form on the way out.
func (ui *HuhUI) formFilter() func(tea.Model, tea.Msg) tea.Msg {
	return func(_ tea.Model, msg tea.Msg) tea.Msg {
		if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyCtrlC {
			ui.ctrlCAbort = true
		}
		if _, ok := msg.(tea.InterruptMsg); ok {
			return tea.QuitMsg{}
		}
		return msg
	}
}

// runForm runs form on stderr. Esc leaves the bound value untouched and returns nil;
// Ctrl+C returns ErrCancelled.
func (ui *HuhUI) runForm(form *huh.Form) error {
	if !ui.Interactive() {
		return ErrNotInteractive
	}

	ui.ctrlCAbort = false
	form.WithKeyMap(promptKeyMap())
	form.WithProgramOptions(
		tea.WithOutput(os.Stderr),
		tea.WithFilter(ui.formFilter()),
	)

	err := runFormFunc(form)
	if errors.Is(err, huh.ErrUserAborted) {
		if ui.ctrlCAbort {
			return ErrCancelled
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf(messages.PromptFailedFmt, err)
	}
	return nil
}

// Confirm renders a yes/no prompt.
func (ui *HuhUI) Confirm(title string, value *bool) error {
	return ui.runForm(huh.NewForm(
		huh.NewGroup(
			newHintField(huh.NewConfirm().
				Title(title).
				Value(value)),
		),
	))
}

// Input renders a plain text input prompt.
func (ui *HuhUI) Input(title string, value *string) error {
	return ui.runForm(huh.NewForm(
		huh.NewGroup(
			newHintField(huh.NewInput().
				Title(title).
				Value(value)),
		),
	))
}

// SecretInput renders a masked input prompt for credentials.
func (ui *HuhUI) SecretInput(title string, value *string) error {
	return ui.runForm(huh.NewForm(
		huh.NewGroup(
			newHintField(huh.NewInput().
				Title(title).
				Value(value).
				EchoMode(huh.EchoModePassword)),
		),
	))
}
