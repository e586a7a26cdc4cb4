package classify

import (
	"errors"
	"fmt"
	"slices"

	"github.com/goplus/capi/internal/config"
	"github.com/goplus/capi/internal/target"
)

// Kind is a library type the external build tool can be asked for.
type Kind string

const (
	Static Kind = "staticlib"
	Shared Kind = "cdylib"
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Shared:
		return "shared"
	}
	return string(k)
}

// ParseKind accepts both the short (static, shared) and the toolchain
// (staticlib, cdylib) spellings.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "static", "staticlib":
		return Static, nil
	case "shared", "cdylib":
		return Shared, nil
	}
	return "", fmt.Errorf("unknown library type %q, want static or shared", s)
}

// ErrNoFeasibleKind is returned by Result.Err when nothing can be built.
var ErrNoFeasibleKind = errors.New("no requested library type can be built for this target")

// PlatformUnsupportedError reports a library kind the target cannot produce.
type PlatformUnsupportedError struct {
	Kind    Kind
	Target  string
	Library string
	Reason  string
}

func (e *PlatformUnsupportedError) Error() string {
	return fmt.Sprintf("%s library %s is not supported on %s: %s", e.Kind, e.Library, e.Target, e.Reason)
}

// Request is the set of library kinds asked for. Force marks kinds the user
// named explicitly and wants attempted even where the platform normally
// cannot build them; the build tool then reports its own failure.
type Request struct {
	Kinds []Kind
	Force bool
}

// Result splits a Request into buildable and unbuildable kinds.
type Result struct {
	Feasible   []Kind // ordered: static before shared
	Infeasible map[Kind]*PlatformUnsupportedError
}

// Has reports whether k is feasible.
func (r Result) Has(k Kind) bool {
	return slices.Contains(r.Feasible, k)
}

// Err returns ErrNoFeasibleKind when nothing is feasible, and the joined
// PlatformUnsupportedErrors when requireAll is set and anything is not.
func (r Result) Err(requireAll bool) error {
	if len(r.Feasible) == 0 {
		return ErrNoFeasibleKind
	}
	if !requireAll || len(r.Infeasible) == 0 {
		return nil
	}
	var errs []error
	for _, k := range []Kind{Static, Shared} {
		if e, ok := r.Infeasible[k]; ok {
			errs = append(errs, e)
		}
	}
	return errors.Join(errs...)
}

// DefaultKinds returns the kinds built when the user does not choose.
func DefaultKinds(p *target.Platform) []Kind {
	if !p.DynamicLibraries {
		return []Kind{Static}
	}
	return []Kind{Static, Shared}
}

// Classify decides which requested kinds are feasible on p. Static is
// always feasible. An empty request means DefaultKinds.
func Classify(cfg *config.Resolved, p *target.Platform, req Request) Result {
	kinds := req.Kinds
	if len(kinds) == 0 {
		kinds = DefaultKinds(p)
	}
	res := Result{Infeasible: map[Kind]*PlatformUnsupportedError{}}
	for _, k := range []Kind{Static, Shared} {
		if !slices.Contains(kinds, k) {
			continue
		}
		if k == Shared && !p.DynamicLibraries && !req.Force {
			res.Infeasible[k] = &PlatformUnsupportedError{
				Kind:    k,
				Target:  p.Triple,
				Library: cfg.Library.Name,
				Reason:  reason(p),
			}
			continue
		}
		res.Feasible = append(res.Feasible, k)
	}
	return res
}

func reason(p *target.Platform) string {
	if p.ABI == target.Musl {
		return "musl targets link statically by default"
	}
	return "the target has no dynamic loader"
}
