package inbox

import (
	"context"
)

// Optimistic is a local state change that is shown before the remote call
// confirms it.
//
// Apply changes local state and returns whatever Revert needs to restore it
// exactly. Remote performs the call. If Remote fails, Revert receives the
// snapshot taken by Apply. Revert may be nil for changes that are not undone.
type Optimistic[S any] struct {
	Apply  func() S
	Remote func(ctx context.Context) error
	Revert func(S)
}

// Run applies the change, performs the remote call and reverts on failure.
// It returns the remote error after Revert has run.
func (o Optimistic[S]) Run(ctx context.Context) error {
	snapshot := o.Apply()

	if err := callRemote(ctx, o.Remote); err != nil {
		if o.Revert != nil {
			o.Revert(snapshot)
		}
		return err
	}
	return nil
}
