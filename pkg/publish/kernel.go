package publish

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// NullKernelAdapter is used for non-privileged runs: file-level
// publication happens, but the kernel step is a no-op, per §4.9.
type NullKernelAdapter struct{}

func (NullKernelAdapter) ListNames(ctx context.Context) ([]string, error) { return nil, nil }
func (NullKernelAdapter) Create(ctx context.Context, name, kind string, maxElem int) error {
	return nil
}
func (NullKernelAdapter) Restore(ctx context.Context, name string, entries []string) error {
	return nil
}
func (NullKernelAdapter) Swap(ctx context.Context, a, b string) error    { return nil }
func (NullKernelAdapter) Destroy(ctx context.Context, name string) error { return nil }

// CLIKernelAdapter shells out to the documented ipset-like CLI at
// BinaryPath, mirroring how §6's kernel adapter interface is expected to
// be implemented against a real packet-filter tool.
type CLIKernelAdapter struct {
	BinaryPath string
}

func (a *CLIKernelAdapter) run(ctx context.Context, stdin string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, a.BinaryPath, args...)
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("kernel adapter: %s %s: %w (%s)", a.BinaryPath, strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

func (a *CLIKernelAdapter) ListNames(ctx context.Context) ([]string, error) {
	out, err := a.run(ctx, "", "list", "-name")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func (a *CLIKernelAdapter) Create(ctx context.Context, name, kind string, maxElem int) error {
	hashKind := "hash:net"
	if kind == "ipset" {
		hashKind = "hash:ip"
	}
	_, err := a.run(ctx, "", "create", name, hashKind, "maxelem", strconv.Itoa(maxElem), "-exist")
	return err
}

func (a *CLIKernelAdapter) Restore(ctx context.Context, name string, entries []string) error {
	var buf strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&buf, "add %s %s\n", name, e)
	}
	buf.WriteString("COMMIT\n")
	_, err := a.run(ctx, buf.String(), "restore")
	return err
}

func (a *CLIKernelAdapter) Swap(ctx context.Context, name, tmpName string) error {
	_, err := a.run(ctx, "", "swap", name, tmpName)
	return err
}

func (a *CLIKernelAdapter) Destroy(ctx context.Context, name string) error {
	_, err := a.run(ctx, "", "destroy", name)
	return err
}
