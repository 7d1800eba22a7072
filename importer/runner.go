package importer

import (
	"bytes"
	"fmt"
	"os/exec"
)

// CommandRunner executes an external command with the given argv in dir
// and returns its combined/standard output. Injected so tests never
// shell out to a real gcov binary, per spec.md §9's note on replacing
// the original's process-wide runner hook with explicit dependency
// injection.
type CommandRunner interface {
	Run(argv []string, dir string) (string, error)
}

// ExecRunner runs commands with os/exec. dir == "-" means "inherit the
// current working directory" (mirrors the original's TempDir sentinel).
type ExecRunner struct{}

func (ExecRunner) Run(argv []string, dir string) (string, error) {
	if len(argv) == 0 {
		return "", fmt.Errorf("empty command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if dir != "" && dir != "-" {
		cmd.Dir = dir
	}
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), fmt.Errorf("run %v: %w", argv, err)
	}
	return out.String(), nil
}
