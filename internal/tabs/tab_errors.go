package tabs

import "slices"

// queueError records a load failure. Failures with a code already queued are
// dropped; the first queued failure is shown at once if the tab is visible.
func (t *Tab) queueError(code ErrorCode, description string) {
	if slices.ContainsFunc(t.errors, func(e LoadError) bool { return e.Code == code }) {
		return
	}
	title := NetworkErrorTitle
	if code == ErrorFileNotFound {
		title = FileErrorTitle
	}
	e := LoadError{Code: code, Title: title, Description: description}
	t.errors = append(t.errors, e)
	if len(t.errors) == 1 && t.inForeground {
		t.delegate.ShowError(t, e)
	}
}

// DismissError drops the error currently shown and shows the next one.
func (t *Tab) DismissError() {
	if len(t.errors) == 0 {
		return
	}
	t.errors = t.errors[1:]
	if len(t.errors) > 0 && t.inForeground {
		t.delegate.ShowError(t, t.errors[0])
	}
}

// PendingErrors returns the queued load failures, head first.
func (t *Tab) PendingErrors() []LoadError { return slices.Clone(t.errors) }
