//go:build integration

package toolrunner

import (
	"fmt"
	"strings"

	"github.com/confinement-tools/mountns/tests/integration/vm"
)

// Runner executes the installed mountns binary inside the test VM
type Runner struct {
	vm      vm.VM
	binPath string
}

// New creates a Runner for the binary installed at binPath in the VM
func New(v vm.VM, binPath string) *Runner {
	return &Runner{vm: v, binPath: binPath}
}

// Run executes mountns with the given arguments as root and returns the
// combined output.
func (r *Runner) Run(args ...string) (string, error) {
	quoted := make([]string, 0, len(args))
	for _, arg := range args {
		quoted = append(quoted, fmt.Sprintf("%q", arg))
	}
	cmd := fmt.Sprintf("sudo %s %s", r.binPath, strings.Join(quoted, " "))
	return r.vm.Run(cmd)
}

// ReadFile reads a file from the VM
func (r *Runner) ReadFile(path string) (string, error) {
	return r.vm.Run(fmt.Sprintf("sudo cat %q", path))
}
