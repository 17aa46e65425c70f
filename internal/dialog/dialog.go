// Package dialog models the native dialogs the session needs. The UI process
// shows the dialog itself and sends the user's choice along with the
// command, so the session reads answers rather than blocking on a window.
package dialog

import (
	"context"
	"fmt"

	"github.com/starford/prose/internal/apperr"
)

// Dialogs is the dialog capability consumed by the session.
type Dialogs interface {
	// SelectDirectory returns the chosen folder or apperr.ErrCancelled.
	SelectDirectory(ctx context.Context) (string, error)
	// SelectSaveTarget returns the chosen path or apperr.ErrCancelled.
	SelectSaveTarget(ctx context.Context, suggested string) (string, error)
	// Confirm reports whether the user accepted message.
	Confirm(ctx context.Context, message string) (bool, error)
}

// Answers holds choices the user already made. Empty fields mean the dialog
// was dismissed, so the zero value cancels everything.
type Answers struct {
	Directory  string
	SaveTarget string
	Confirmed  bool
}

// SelectDirectory implements Dialogs.
func (a Answers) SelectDirectory(context.Context) (string, error) {
	if a.Directory == "" {
		return "", fmt.Errorf("select directory: %w", apperr.ErrCancelled)
	}
	return a.Directory, nil
}

// SelectSaveTarget implements Dialogs.
func (a Answers) SelectSaveTarget(_ context.Context, _ string) (string, error) {
	if a.SaveTarget == "" {
		return "", fmt.Errorf("select save target: %w", apperr.ErrCancelled)
	}
	return a.SaveTarget, nil
}

// Confirm implements Dialogs.
func (a Answers) Confirm(context.Context, string) (bool, error) {
	return a.Confirmed, nil
}

type ctxKey struct{}

// WithAnswers returns a context carrying a.
func WithAnswers(ctx context.Context, a Answers) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the answers carried by ctx, or fallback if none.
func FromContext(ctx context.Context, fallback Dialogs) Dialogs {
	if a, ok := ctx.Value(ctxKey{}).(Answers); ok {
		return a
	}
	return fallback
}

// Contextual is a Dialogs that answers from the request context and
// cancels when no answers were attached.
type Contextual struct{}

func (Contextual) SelectDirectory(ctx context.Context) (string, error) {
	return FromContext(ctx, Answers{}).SelectDirectory(ctx)
}

func (Contextual) SelectSaveTarget(ctx context.Context, suggested string) (string, error) {
	return FromContext(ctx, Answers{}).SelectSaveTarget(ctx, suggested)
}

func (Contextual) Confirm(ctx context.Context, message string) (bool, error) {
	return FromContext(ctx, Answers{}).Confirm(ctx, message)
}
