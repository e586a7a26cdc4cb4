package build

import (
	"context"
	"fmt"

	"github.com/goplus/capi/internal/par"
)

// RunTargets calls f once for every distinct triple in targets, at most n
// at a time. A failing target does not stop the others; the returned error
// joins every failure in the order targets were given.
//
// The targets share nothing but the resolved configuration, which is
// read-only. Installs into a common prefix are serialized by Install.
func RunTargets(ctx context.Context, targets []string, n int, f func(ctx context.Context, triple string) error) error {
	var w par.Work[string]
	for _, t := range targets {
		w.Add(t)
	}
	n = max(1, min(n, w.Len()))
	return w.Do(n, func(triple string) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: %w", triple, err)
		}
		return f(ctx, triple)
	})
}
