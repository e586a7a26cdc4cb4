package build

import (
	"fmt"
	"strings"
)

// ExternalToolError reports a failed compiler, header generator or import
// library tool run. It is fatal for the target.
type ExternalToolError struct {
	Target string
	Stage  string // "compile", "header", "import-library"
	Err    error  // usually a *buildsys.ToolError with the tool's diagnostic
}

func (e *ExternalToolError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Target, e.Stage, e.Err)
}

func (e *ExternalToolError) Unwrap() error {
	return e.Err
}

// IOError reports a filesystem failure on Path.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return e.Op + " " + e.Path + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// PartialError names the artifacts that were produced before a failure
// that could not be rolled back.
type PartialError struct {
	Done []string
	Err  error
}

func (e *PartialError) Error() string {
	if len(e.Done) == 0 {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (completed: %s)", e.Err, strings.Join(e.Done, ", "))
}

func (e *PartialError) Unwrap() error {
	return e.Err
}
