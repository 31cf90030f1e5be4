package gpuprobe

import "go.uber.org/multierr"

// releaseList scopes per-candidate resources to one sweep iteration. Both
// sweeps take and release buffers and events on every exit path, including
// the failure paths, so nothing is carried between candidates.
type releaseList struct {
	fns []func() error
}

func (l *releaseList) add(fn func() error) {
	l.fns = append(l.fns, fn)
}

// release runs the registered functions in reverse order and aggregates
// their errors instead of letting a later one mask an earlier one.
func (l *releaseList) release() error {
	var err error
	for i := len(l.fns) - 1; i >= 0; i-- {
		err = multierr.Append(err, l.fns[i]())
	}
	l.fns = nil
	return err
}
