package monitor

import (
	"fmt"

	"github.com/dkhv/tg-monitor/internal/normalize"
)

// ResolveTarget finds the relay destination among the account's dialogs by
// title. Both the configured title and every candidate title are compared
// in normalized form (trim, case fold, ё→е, whitespace collapse).
//
// Exactly one match is required: zero matches fail with ErrTargetNotFound,
// more than one with ErrTargetAmbiguous, so a message is never relayed to
// the wrong destination. Renaming the extra channel is the way out of the
// ambiguous case.
func ResolveTarget(dialogs []Dialog, title string) (Dialog, error) {
	want := normalize.Fold(title)
	if want == "" {
		return Dialog{}, resolutionErr("resolve target", fmt.Errorf("%w: empty title", ErrTargetNotFound))
	}

	var matches []Dialog
	for _, d := range dialogs {
		if normalize.Fold(d.Title) == want {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return Dialog{}, resolutionErr("resolve target", fmt.Errorf("%w: %q", ErrTargetNotFound, title))
	case 1:
		return matches[0], nil
	default:
		return Dialog{}, resolutionErr("resolve target",
			fmt.Errorf("%w: %q matches %d dialogs", ErrTargetAmbiguous, title, len(matches)))
	}
}
