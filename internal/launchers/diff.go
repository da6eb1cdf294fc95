package launchers

import (
	"github.com/aymanbagabas/go-udiff"
)

// Diff returns a unified diff from the replaced file to the new one, or "" when the
// installation did not replace anything or nothing changed.
func (i *Installation) Diff() string {
	if i.Previous == nil {
		return ""
	}
	return udiff.Unified(i.Path+" (previous)", i.Path, string(i.Previous), string(i.Content))
}
