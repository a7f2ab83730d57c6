// Package interactive provides terminal user interface components.
package interactive

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

// MenuOption represents a menu item with its associated action.
type MenuOption struct {
	Name        string
	Description string
	Action      func() error
}

var (
	// ErrExit is returned when the user chooses to exit.
	ErrExit = errors.New("exit")
	// ErrInvalidSelection is returned when an invalid menu option is selected.
	ErrInvalidSelection = errors.New("invalid selection")
)

// Menu is a looping select menu over a fixed set of options.
type Menu struct {
	title   string
	options []MenuOption
}

// NewMenu creates a menu with a title line and its options.
func NewMenu(title string, options []MenuOption) *Menu {
	return &Menu{title: title, options: options}
}

// Run shows the menu repeatedly until the user exits.
func (m *Menu) Run() error {
	fmt.Println(m.title)
	fmt.Println()

	for {
		if err := m.showOnce(); err != nil {
			if errors.Is(err, ErrExit) {
				fmt.Println("Goodbye!")

				return nil
			}

			return err
		}

		fmt.Println()
	}
}

func (m *Menu) showOnce() error {
	choices := make([]string, 0, len(m.options)+1)
	optionMap := make(map[string]MenuOption, len(m.options))

	for _, opt := range m.options {
		choice := fmt.Sprintf("%s - %s", opt.Name, opt.Description)
		choices = append(choices, choice)
		optionMap[choice] = opt
	}

	choices = append(choices, "Exit")

	var selected string

	prompt := &survey.Select{
		Message: "What would you like to do?",
		Options: choices,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return ErrExit
	}

	if selected == "Exit" {
		return ErrExit
	}

	if option, ok := optionMap[selected]; ok {
		return option.Action()
	}

	return ErrInvalidSelection
}

// PauseForEnter waits for the user to press Enter.
func PauseForEnter() {
	fmt.Println("\nPress Enter to continue...")
	_, _ = fmt.Scanln()
}

// SelectMany prompts for a multi-selection from options. An empty selection
// is returned as-is; the caller decides what it means.
func SelectMany(message string, options []string) ([]string, error) {
	var selected []string

	prompt := &survey.MultiSelect{
		Message: message,
		Options: options,
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return nil, ErrExit
	}

	return selected, nil
}

// Confirm asks for user confirmation, defaulting to no.
func Confirm(message string) bool {
	confirmed := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	_ = survey.AskOne(prompt, &confirmed)

	return confirmed
}
