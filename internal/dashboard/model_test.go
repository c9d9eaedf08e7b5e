package dashboard

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/skobkin/conntop-web/internal/snapshot"
)

func TestNewModelSortsByTotalTraffic(t *testing.T) {
	t.Parallel()

	snap := snapshot.Snapshot{
		Connections: []snapshot.Connection{
			{Inode: 2, BytesDownloaded: 1, BytesUploaded: 1},
			{Inode: 1, BytesDownloaded: 10, BytesUploaded: 5},
		},
		Processes: []snapshot.Process{{PID: 9}},
	}

	model := NewModel(snap, time.Unix(100, 0))

	if len(model.Connections) != 2 {
		t.Fatalf("expected 2 connections, got %d", len(model.Connections))
	}
	if model.Connections[0].TotalBytes() != 15 || model.Connections[1].TotalBytes() != 2 {
		t.Fatalf("unexpected order %+v", model.Connections)
	}
	if snap.Connections[0].Inode != 2 {
		t.Fatalf("source snapshot must not be reordered")
	}
	if len(model.Processes) != 1 || model.Processes[0].PID != 9 {
		t.Fatalf("processes should pass through unchanged, got %+v", model.Processes)
	}
}

func TestNewModelStableForEqualTotals(t *testing.T) {
	t.Parallel()

	snap := snapshot.Snapshot{
		Connections: []snapshot.Connection{
			{Inode: 1, BytesDownloaded: 4, BytesUploaded: 0},
			{Inode: 2, BytesDownloaded: 0, BytesUploaded: 9},
			{Inode: 3, BytesDownloaded: 2, BytesUploaded: 2},
			{Inode: 4, BytesDownloaded: 1, BytesUploaded: 3},
			{Inode: 5, BytesDownloaded: 3, BytesUploaded: 1},
		},
	}

	model := NewModel(snap, time.Time{})

	want := []uint64{2, 1, 3, 4, 5}
	for i, conn := range model.Connections {
		if conn.Inode != want[i] {
			t.Fatalf("position %d: expected inode %d, got %d (order %+v)", i, want[i], conn.Inode, model.Connections)
		}
	}
}

func TestEmptyModelRendersEmptyArrays(t *testing.T) {
	t.Parallel()

	for name, model := range map[string]Model{
		"empty":    EmptyModel(),
		"from nil": NewModel(snapshot.Snapshot{}, time.Time{}),
	} {
		data, err := json.Marshal(model)
		if err != nil {
			t.Fatalf("%s: marshal: %v", name, err)
		}
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("%s: unmarshal: %v", name, err)
		}
		if string(decoded["connections"]) != "[]" || string(decoded["processes"]) != "[]" {
			t.Fatalf("%s: expected empty arrays, got %s", name, data)
		}
	}
}

func TestProcessLabelPriority(t *testing.T) {
	t.Parallel()

	processes := []snapshot.Process{
		{PID: 10, Executable: "/usr/bin/curl", Command: "curl example.com", Inodes: []uint64{100}},
		{PID: 11, Command: "sshd: user", Inodes: []uint64{200, 201}},
		{PID: 12, Inodes: []uint64{300}},
		{PID: 13, Executable: "/usr/bin/second", Inodes: []uint64{100}},
	}
	lookup := LinearLookup{}

	cases := []struct {
		inode uint64
		want  string
	}{
		{100, "/usr/bin/curl"},
		{201, "sshd: user"},
		{300, "12"},
		{999, ""},
	}
	for _, tc := range cases {
		if got := ProcessLabel(lookup, processes, tc.inode); got != tc.want {
			t.Errorf("ProcessLabel(%d) = %q, want %q", tc.inode, got, tc.want)
		}
	}

	if got := ProcessLabel(lookup, nil, 100); got != "" {
		t.Fatalf("expected empty label with no processes, got %q", got)
	}
}

type fixedLookup struct {
	proc snapshot.Process
}

func (f fixedLookup) ProcessByInode([]snapshot.Process, snapshot.Inode) (snapshot.Process, bool) {
	return f.proc, true
}

func TestBuildRows(t *testing.T) {
	t.Parallel()

	model := NewModel(snapshot.Snapshot{
		Connections: []snapshot.Connection{
			{Source: "10.0.0.2:5000", Destination: "1.1.1.1:53", Inode: 1, TransportType: snapshot.TransportUDP, BytesDownloaded: 512, BytesUploaded: 512},
			{Source: "10.0.0.2:5001", Destination: "1.1.1.1:443", Inode: 2, TransportType: snapshot.TransportTCP, BytesDownloaded: 1048576, BytesUploaded: 1024},
		},
		Processes: []snapshot.Process{{PID: 77, Executable: "/usr/bin/dig", Inodes: []uint64{1}}},
	}, time.Time{})

	rows := BuildRows(model, nil)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}

	top := rows[0]
	if top.Inode != 2 || top.Transport != "Tcp" || top.Process != "" {
		t.Fatalf("unexpected top row %+v", top)
	}
	if top.Downloaded != "1 MB" || top.Uploaded != "1 KB" || top.Total != "1 MB" {
		t.Fatalf("unexpected formatting %+v", top)
	}

	second := rows[1]
	if second.Process != "/usr/bin/dig" || second.Total != "1 KB" {
		t.Fatalf("unexpected second row %+v", second)
	}

	custom := BuildRows(model, fixedLookup{proc: snapshot.Process{PID: 5}})
	if custom[0].Process != "5" {
		t.Fatalf("expected injected lookup to be used, got %q", custom[0].Process)
	}
}
