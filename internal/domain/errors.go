package domain

import (
	"fmt"
	"strings"
)

// MultipleBranchesError is returned when more than one branch matches an
// item. The engine never picks one on its own; the full ambiguous set is
// carried so a human can resolve it.
type MultipleBranchesError struct {
	Number   int
	Branches []BranchRef
}

func (e *MultipleBranchesError) Error() string {
	names := make([]string, len(e.Branches))
	for i, b := range e.Branches {
		names[i] = b.String()
	}
	return fmt.Sprintf("issue #%d has %d related branches: %s",
		e.Number, len(e.Branches), strings.Join(names, ", "))
}

// NoChangesError is returned when the editor exits successfully but left
// the working tree at the same commit it started on.
type NoChangesError struct {
	Branch string
}

func (e *NoChangesError) Error() string {
	return fmt.Sprintf("editor made no changes on branch %s", e.Branch)
}
