package dmverity

import (
	"bufio"
	"fmt"
	"os/exec"
	"strings"

	"github.com/confinement-tools/mountns/internal/log"
)

// DefaultBinary is the veritysetup executable resolved from PATH.
const DefaultBinary = "veritysetup"

// Info holds the dm-verity data that is not part of the superblock written
// by veritysetup and that must have its authenticity verified before the
// integrity data is loaded into the kernel. For now that is the root hash.
type Info struct {
	RootHash string `json:"root-hash"`
}

// Formatter runs veritysetup against block devices
type Formatter struct {
	binary string
}

// NewFormatter creates a Formatter using the given veritysetup binary.
// An empty binary means DefaultBinary.
func NewFormatter(binary string) *Formatter {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Formatter{binary: binary}
}

// Format runs "veritysetup format", which computes the hash verification
// data for dataDevice and stores it on hashDevice, and returns the root
// hash reported on the command's output.
func (f *Formatter) Format(dataDevice, hashDevice string) (*Info, error) {
	cmd := exec.Command(f.binary, "format", dataDevice, hashDevice)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("%s format %s %s: %w (output: %q)",
			f.binary, dataDevice, hashDevice, err, string(output))
	}

	log.Debug("veritysetup format finished",
		"data", dataDevice, "hash", hashDevice, "output", string(output))

	rootHash, err := rootHashFromOutput(output)
	if err != nil {
		return nil, err
	}

	return &Info{RootHash: rootHash}, nil
}

// rootHashFromOutput extracts the value of the first "Root hash" line of
// veritysetup output. The value follows a colon and surrounding whitespace
// is not significant.
func rootHashFromOutput(output []byte) (string, error) {
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "Root hash") {
			continue
		}
		_, val, _ := strings.Cut(line, ":")
		if rootHash := strings.TrimSpace(val); rootHash != "" {
			return rootHash, nil
		}
		return "", fmt.Errorf("empty root hash")
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}

	return "", fmt.Errorf("no root hash in veritysetup output")
}
