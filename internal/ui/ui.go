// Package ui is the operator-facing surface of the turn loop.
package ui

import "context"

// UI receives everything the controller shows the operator.
type UI interface {
	UpdateStatus(status string)
	UpdateTurns(n int)
	Log(msg string)
	Reply(text string)
	Report(kind string, err error)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string)    {}
func (s SilentUI) UpdateTurns(n int)             {}
func (s SilentUI) Log(msg string)                {}
func (s SilentUI) Reply(text string)             {}
func (s SilentUI) Report(kind string, err error) {}
