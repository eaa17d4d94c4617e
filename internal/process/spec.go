package process

import (
	"os/exec"
	"strings"
)

// Spec describes how to launch the sidecar.
type Spec struct {
	Name        string   `json:"name"`
	Path        string   `json:"path"`                  // resolved executable or source entry
	Interpreter string   `json:"interpreter,omitempty"` // optional launcher, e.g. "python3 -u"
	Args        []string `json:"args,omitempty"`
	WorkDir     string   `json:"work_dir,omitempty"`
	Env         []string `json:"env,omitempty"` // full environment in K=V form; nil inherits
}

// BuildCommand constructs an *exec.Cmd for s. When an interpreter is
// configured the resolved path becomes its first argument.
func (s Spec) BuildCommand() *exec.Cmd {
	var cmd *exec.Cmd
	if fields := strings.Fields(s.Interpreter); len(fields) > 0 {
		args := make([]string, 0, len(fields)+len(s.Args))
		args = append(args, fields[1:]...)
		args = append(args, s.Path)
		args = append(args, s.Args...)
		// #nosec G204 -- interpreter and path come from local configuration
		cmd = exec.Command(fields[0], args...)
	} else {
		// #nosec G204
		cmd = exec.Command(s.Path, s.Args...)
	}
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if len(s.Env) > 0 {
		cmd.Env = s.Env
	}
	configureSysProcAttr(cmd)
	return cmd
}
