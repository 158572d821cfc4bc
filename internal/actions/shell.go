// Package actions provides the built-in registry.ActionFunc
// implementations: a subprocess shell runner and a text-diff helper.
package actions

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"
)

// ShellResult describes the keys of the map a shell action returns; Shell
// itself returns a map[string]interface{}, not this struct.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Shell runs kwargs["command"] in a subprocess via `sh -c` and returns
// its captured stdout/stderr/exit code rather than erroring on a
// non-zero exit so a workflow can branch on it.
func Shell(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
	command, _ := kwargs["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("shell action: kwargs.command is required")
	}

	timeout := 5 * time.Minute
	if secs, ok := kwargs["timeout_seconds"].(float64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	if dir, ok := kwargs["working_dir"].(string); ok && dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	exitCode := 0
	if err := cmd.Run(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return nil, fmt.Errorf("shell action: %w", err)
		}
	}

	return map[string]interface{}{
		"stdout":    stdout.String(),
		"stderr":    stderr.String(),
		"exit_code": exitCode,
	}, nil
}
