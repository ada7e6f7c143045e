package systemd

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/confinement-tools/mountns/internal/log"
)

const (
	dbusService          = "org.freedesktop.systemd1"
	dbusPath             = "/org/freedesktop/systemd1"
	dbusManagerInterface = "org.freedesktop.systemd1.Manager"

	noSuchUnitError = "org.freedesktop.systemd1.NoSuchUnit"
)

// ErrNoUnit is returned when systemd has no unit loaded for a mount point
var ErrNoUnit = errors.New("no systemd unit for mount point")

// Client asks systemd which of the mounts in the current namespace it
// manages. Confinement logic uses this to refuse overmounting mount points
// that systemd would re-create or propagate behind the sandbox's back.
type Client struct {
	conn      DBusConnection
	connectFn func() (DBusConnection, error)
}

// ClientOption is a functional option for Client
type ClientOption func(*Client)

// WithConnection sets a custom DBus connection (for testing)
func WithConnection(conn DBusConnection) ClientOption {
	return func(c *Client) {
		c.conn = conn
		c.connectFn = nil
	}
}

// NewClient creates a Client connected to the system bus unless a custom
// connection is supplied.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		connectFn: ConnectSystemBus,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.conn == nil {
		conn, err := c.connectFn()
		if err != nil {
			return nil, fmt.Errorf("connect to system bus: %w", err)
		}
		c.conn = conn
	}

	return c, nil
}

// Close closes the DBus connection
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// UnitForMountPoint returns the name of the systemd mount unit covering the
// given mount point, or ErrNoUnit when systemd does not manage it.
func (c *Client) UnitForMountPoint(path string) (string, error) {
	name := MountUnitName(path)
	log.Debug("looking up mount unit", "path", path, "unit", name)

	obj := c.conn.Object(dbusService, dbus.ObjectPath(dbusPath))

	var unitPath dbus.ObjectPath
	call := obj.Call(dbusManagerInterface+".GetUnit", 0, name)
	if call.Err != nil {
		var dbusErr dbus.Error
		if errors.As(call.Err, &dbusErr) && dbusErr.Name == noSuchUnitError {
			return "", fmt.Errorf("%w: %s", ErrNoUnit, path)
		}
		return "", fmt.Errorf("GetUnit %s: %w", name, call.Err)
	}

	if err := call.Store(&unitPath); err != nil {
		return "", fmt.Errorf("store GetUnit result: %w", err)
	}

	return name, nil
}

// MountUnitName translates a mount point path into the systemd mount unit
// name for it, following the path escaping rules of systemd.unit(5): "/"
// becomes "-", and bytes outside [a-zA-Z0-9:_.] become \xXX. The root
// mount is the special case "-.mount".
func MountUnitName(path string) string {
	path = filepath.Clean(path)
	if path == "/" {
		return "-.mount"
	}

	path = strings.Trim(path, "/")
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		switch {
		case c == '/':
			b.WriteByte('-')
		case c == '.' && i == 0:
			fmt.Fprintf(&b, `\x%02x`, c)
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '_', c == '.', c == ':':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, `\x%02x`, c)
		}
	}
	return b.String() + ".mount"
}
