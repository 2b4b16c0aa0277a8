package mcp

import (
	"fmt"
	"os"
	"os/exec"
)

// LaunchSpec is the resolved launch specification for one backend process:
// command, arguments, working directory and environment overrides. It is
// constructed once per catalog entry and passed opaquely to Dial.
type LaunchSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Dir     string            `json:"dir,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// cmd materializes the spec into an executable command. Environment
// overrides are merged on top of the parent process environment.
func (s LaunchSpec) cmd() *exec.Cmd {
	cmd := exec.Command(s.Command, s.Args...)
	cmd.Dir = s.Dir
	cmd.Env = os.Environ()
	for k, v := range s.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	return cmd
}

// Catalog maps backend identifiers to launch specifications. It is supplied
// externally and treated as immutable; loading it is out of scope here.
type Catalog map[string]LaunchSpec

// Resolve looks up a backend id.
func (c Catalog) Resolve(id string) (LaunchSpec, bool) {
	spec, ok := c[id]
	return spec, ok
}
