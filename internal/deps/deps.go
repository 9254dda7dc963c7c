package deps

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Requirement defines an external dependency the gateway relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// SearchDirs are consulted before PATH when Command is a bare name.
	SearchDirs []string
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// CheckBinaries evaluates the provided requirements and reports availability.
// Available statuses carry the resolved absolute command path.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := Resolve(cmd, req.SearchDirs...)
		if err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Resolve locates command, preferring an executable in one of dirs when the
// command is a bare name, then falling back to PATH.
func Resolve(command string, dirs ...string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("command not configured")
	}
	if !strings.ContainsRune(command, filepath.Separator) {
		for _, dir := range dirs {
			dir = strings.TrimSpace(dir)
			if dir == "" {
				continue
			}
			candidate := filepath.Join(dir, command)
			if info, err := os.Stat(candidate); err == nil && isExecutable(info) {
				return candidate, nil
			}
		}
	}
	return exec.LookPath(command)
}

func isExecutable(info os.FileInfo) bool {
	return !info.IsDir() && info.Mode().Perm()&0o111 != 0
}
