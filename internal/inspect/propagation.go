package inspect

import (
	"strconv"
	"strings"

	"github.com/confinement-tools/mountns/internal/mountinfo"
)

// Propagation describes how a mount participates in mount event
// propagation, decoded from the optional fields of a mountinfo entry.
// Peer group IDs are zero when the corresponding tag is absent.
type Propagation struct {
	// SharedPeerGroup is the peer group the mount propagates events to
	SharedPeerGroup int
	// MasterPeerGroup is the peer group the mount receives events from
	MasterPeerGroup int
	// PropagateFrom is the closest dominant peer group under the
	// process's root, reported alongside master on some kernels
	PropagateFrom int
	// Unbindable is set for mounts that refuse bind mounting entirely
	Unbindable bool
}

// Shared reports whether the mount sends propagation events.
func (p Propagation) Shared() bool { return p.SharedPeerGroup != 0 }

// Slave reports whether the mount receives but does not send events.
func (p Propagation) Slave() bool { return p.MasterPeerGroup != 0 && !p.Shared() }

// Private reports whether the mount takes no part in propagation.
func (p Propagation) Private() bool {
	return p.SharedPeerGroup == 0 && p.MasterPeerGroup == 0 && !p.Unbindable
}

// DecodePropagation decodes the optional "tag[:value]" fields of an entry.
// Unknown tags are ignored so new kernel tags do not break decoding.
func DecodePropagation(e *mountinfo.Entry) Propagation {
	var p Propagation
	for _, field := range strings.Fields(e.OptionalFields) {
		tag, value, _ := strings.Cut(field, ":")
		switch tag {
		case "shared":
			p.SharedPeerGroup = peerGroup(value)
		case "master":
			p.MasterPeerGroup = peerGroup(value)
		case "propagate_from":
			p.PropagateFrom = peerGroup(value)
		case "unbindable":
			p.Unbindable = true
		}
	}
	return p
}

func peerGroup(value string) int {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}
