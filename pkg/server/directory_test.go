package server

import (
	"fmt"
	"net"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEndpoint returns an endpoint backed by an in-memory pipe. The far
// end is closed by t.Cleanup.
func testEndpoint(t *testing.T, id uint64) *Endpoint {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return NewEndpoint(id, server)
}

func TestNormalizeHandle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice", "alice"},
		{"ALICE", "alice"},
		{"alice", "alice"},
		{"  Bob\t", "bob"},
		{"\n carol \r", "carol"},
		{"x_1-2", "x_1-2"},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeHandle(tt.in), "NormalizeHandle(%q)", tt.in)
	}
}

func TestDirectoryAddLookup(t *testing.T) {
	d := NewDirectory()
	ep := testEndpoint(t, 1)

	require.NoError(t, d.Add("Alice", ep))
	assert.Equal(t, 1, d.Len())

	got, ok := d.Lookup("Alice")
	require.True(t, ok)
	assert.Same(t, ep, got)

	// Lookup compares on the normalized form.
	got, ok = d.Lookup("  aLiCe ")
	require.True(t, ok)
	assert.Same(t, ep, got)

	_, ok = d.Lookup("bob")
	assert.False(t, ok)
}

func TestDirectoryDuplicate(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("Alice", testEndpoint(t, 1)))

	err := d.Add("alice", testEndpoint(t, 2))
	require.ErrorIs(t, err, ErrDuplicateHandle)

	err = d.Add(" ALICE ", testEndpoint(t, 3))
	require.ErrorIs(t, err, ErrDuplicateHandle)

	assert.Equal(t, 1, d.Len())
}

func TestDirectoryWhitespaceOnly(t *testing.T) {
	d := NewDirectory()
	require.ErrorIs(t, d.Add("  \t ", testEndpoint(t, 1)), ErrInvalidHandle)
	assert.Equal(t, 0, d.Len())
}

func TestDirectoryRemove(t *testing.T) {
	d := NewDirectory()
	a := testEndpoint(t, 1)
	b := testEndpoint(t, 2)
	require.NoError(t, d.Add("Alice", a))
	require.NoError(t, d.Add("Bob", b))

	assert.True(t, d.RemoveHandle("ALICE"))
	assert.False(t, d.RemoveHandle("alice"))
	assert.Equal(t, 1, d.Len())

	handle, ok := d.RemoveEndpoint(b.ID())
	require.True(t, ok)
	assert.Equal(t, "Bob", handle)
	assert.Equal(t, 0, d.Len())

	_, ok = d.RemoveEndpoint(99)
	assert.False(t, ok)
}

func TestDirectoryEnumerationOrder(t *testing.T) {
	d := NewDirectory()
	// Insert out of order; enumeration must follow normalized byte order,
	// shorter-before-longer on shared prefixes.
	for i, h := range []string{"Carol", "ab", "Bob", "a", "abc", "Alice"} {
		require.NoError(t, d.Add(h, testEndpoint(t, uint64(i+1))))
	}

	var got []string
	for _, e := range d.Snapshot() {
		got = append(got, e.Handle)
	}
	want := []string{"a", "ab", "abc", "Alice", "Bob", "Carol"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("enumeration order mismatch (-want +got):\n%s", diff)
	}
}

// A snapshot is a copy: mutations after the snapshot must not be visible
// through it.
func TestDirectorySnapshotIsolation(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("alice", testEndpoint(t, 1)))
	require.NoError(t, d.Add("bob", testEndpoint(t, 2)))

	snap := d.Snapshot()
	require.NoError(t, d.Add("carol", testEndpoint(t, 3)))
	require.True(t, d.RemoveHandle("alice"))

	require.Len(t, snap, 2)
	assert.Equal(t, "alice", snap[0].Handle)
	assert.Equal(t, "bob", snap[1].Handle)
}

func TestDirectorySnapshotPreservesRegisteredBytes(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Add("MiXeD", testEndpoint(t, 1)))

	snap := d.Snapshot()
	require.Len(t, snap, 1)
	// The wire form is the exact bytes the owner registered, not the
	// normalized key.
	assert.Equal(t, "MiXeD", snap[0].Handle)
}

func TestDirectoryManyHandles(t *testing.T) {
	d := NewDirectory()
	const n = 500
	for i := 0; i < n; i++ {
		require.NoError(t, d.Add(fmt.Sprintf("user%04d", i), testEndpoint(t, uint64(i+1))))
	}
	assert.Equal(t, n, d.Len())

	ep, ok := d.Lookup("USER0250")
	require.True(t, ok)
	assert.Equal(t, uint64(251), ep.ID())
}
