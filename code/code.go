// Package code holds the code-execution collaborators of the analysis
// workflow: the Executor seam that turns analysis code plus the user query
// into a textual result, and the static safety Validator that gates every
// execution attempt.
package code

import "context"

// Executor runs (or simulates) a snippet of analysis code for a user query
// and returns the textual result. Implementations must not be reached with
// unvalidated code; callers gate every snippet through a Validator first.
type Executor interface {
	Execute(ctx context.Context, code, query string) (string, error)
}
