package buildsys

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

// Run executes bin with args. The process output is streamed to stdout and
// stderr (when non-nil) and its standard error is also returned, so callers
// can both show progress and parse diagnostics. A failure is a *ToolError.
func Run(ctx context.Context, bin string, args []string, env map[string]string, stdout, stderr io.Writer) (string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var errBuf bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &errBuf
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(&errBuf, stderr)
	}
	if len(env) > 0 {
		cmd.Env = MergeEnv(os.Environ(), env)
	}
	if err := cmd.Run(); err != nil {
		return errBuf.String(), &ToolError{Tool: bin, Args: args, Output: errBuf.String(), Err: err}
	}
	return errBuf.String(), nil
}

// MergeEnv overlays override on a KEY=VALUE environment. The result is
// sorted by key.
func MergeEnv(base []string, override map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for k, v := range override {
		envMap[k] = v
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

// Tool returns the executable configured in the environment variable key,
// or def when it is unset.
func Tool(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
