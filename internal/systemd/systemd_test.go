package systemd

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/godbus/dbus/v5"

	"github.com/confinement-tools/mountns/internal/log"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	log.Setup(false)
	os.Exit(m.Run())
}

// mockManagerObject implements dbus.BusObject and answers GetUnit for a
// fixed set of loaded unit names.
type mockManagerObject struct {
	units map[string]dbus.ObjectPath
}

func (m *mockManagerObject) Call(method string, flags dbus.Flags, args ...any) *dbus.Call {
	if method != dbusManagerInterface+".GetUnit" || len(args) != 1 {
		return &dbus.Call{Err: dbus.ErrMsgUnknownMethod}
	}
	name, ok := args[0].(string)
	if !ok {
		return &dbus.Call{Err: dbus.ErrMsgInvalidArg}
	}
	path, ok := m.units[name]
	if !ok {
		return &dbus.Call{Err: dbus.Error{Name: noSuchUnitError, Body: []any{"unit not loaded"}}}
	}
	return &dbus.Call{Body: []any{path}}
}

func (m *mockManagerObject) CallWithContext(_ context.Context, method string, flags dbus.Flags, args ...any) *dbus.Call {
	return m.Call(method, flags, args...)
}

func (m *mockManagerObject) Go(method string, flags dbus.Flags, ch chan *dbus.Call, args ...any) *dbus.Call {
	return m.Call(method, flags, args...)
}

func (m *mockManagerObject) GoWithContext(_ context.Context, method string, flags dbus.Flags, ch chan *dbus.Call, args ...any) *dbus.Call {
	return m.Call(method, flags, args...)
}

func (m *mockManagerObject) AddMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (m *mockManagerObject) RemoveMatchSignal(iface, member string, options ...dbus.MatchOption) *dbus.Call {
	return &dbus.Call{}
}

func (m *mockManagerObject) GetProperty(p string) (dbus.Variant, error) {
	return dbus.Variant{}, nil
}

func (m *mockManagerObject) StoreProperty(p string, value any) error {
	return nil
}

func (m *mockManagerObject) SetProperty(p string, v any) error {
	return nil
}

func (m *mockManagerObject) Destination() string {
	return dbusService
}

func (m *mockManagerObject) Path() dbus.ObjectPath {
	return dbus.ObjectPath(dbusPath)
}

// mockDBusConnection implements DBusConnection for testing
type mockDBusConnection struct {
	manager *mockManagerObject
}

func (m *mockDBusConnection) Object(dest string, path dbus.ObjectPath) dbus.BusObject {
	return m.manager
}

func (m *mockDBusConnection) Close() error {
	return nil
}

func newTestClient(t *testing.T, units map[string]dbus.ObjectPath) *Client {
	t.Helper()
	conn := &mockDBusConnection{manager: &mockManagerObject{units: units}}
	client, err := NewClient(WithConnection(conn))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestUnitForMountPoint(t *testing.T) {
	client := newTestClient(t, map[string]dbus.ObjectPath{
		"mnt-data.mount": "/org/freedesktop/systemd1/unit/mnt_2ddata_2emount",
		"-.mount":        "/org/freedesktop/systemd1/unit/_2d_2emount",
	})

	unit, err := client.UnitForMountPoint("/mnt/data")
	if err != nil {
		t.Fatalf("UnitForMountPoint: %v", err)
	}
	if unit != "mnt-data.mount" {
		t.Errorf("unit = %q, want mnt-data.mount", unit)
	}

	unit, err = client.UnitForMountPoint("/")
	if err != nil {
		t.Fatalf("UnitForMountPoint for root: %v", err)
	}
	if unit != "-.mount" {
		t.Errorf("unit = %q, want -.mount", unit)
	}
}

func TestUnitForMountPointNotManaged(t *testing.T) {
	client := newTestClient(t, map[string]dbus.ObjectPath{})

	_, err := client.UnitForMountPoint("/mnt/scratch")
	if err == nil {
		t.Fatal("expected error for unmanaged mount point")
	}
	if !errors.Is(err, ErrNoUnit) {
		t.Errorf("error %v does not wrap ErrNoUnit", err)
	}
}

func TestMountUnitName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "-.mount"},
		{"/mnt", "mnt.mount"},
		{"/mnt/data", "mnt-data.mount"},
		{"/mnt/data/", "mnt-data.mount"},
		{"/mnt/my-disk", `mnt-my\x2ddisk.mount`},
		{"/home/user 1", `home-user\x201.mount`},
		{"/srv/.hidden", `srv-.hidden.mount`},
		{"/var/lib/machines", "var-lib-machines.mount"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := MountUnitName(tt.path); got != tt.want {
				t.Errorf("MountUnitName(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}
