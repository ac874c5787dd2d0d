package pve

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// runner executes node management commands. The production implementation
// shells out via os/exec; tests substitute a recording fake.
type runner interface {
	// Run executes a command and returns its combined stdout+stderr output.
	// A non-zero exit status is returned as an error, with the output still
	// populated so callers can surface the tool's message.
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// execRunner runs commands on the local node.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)

	// qm interleaves progress on stderr with results on stdout; parsing
	// wants both streams in order.
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	err := cmd.Run()
	output := buf.String()
	if err != nil {
		return output, fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(output))
	}
	return output, nil
}
