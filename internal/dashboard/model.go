package dashboard

import (
	"cmp"
	"slices"
	"strconv"
	"time"

	"github.com/skobkin/conntop-web/internal/snapshot"
)

// Model is the display model derived from one snapshot.
type Model struct {
	Connections []snapshot.Connection `json:"connections"`
	Processes   []snapshot.Process    `json:"processes"`
	FetchedAt   time.Time             `json:"fetched_at"`
}

// EmptyModel is published before the first successful poll.
func EmptyModel() Model {
	return Model{
		Connections: []snapshot.Connection{},
		Processes:   []snapshot.Process{},
	}
}

// NewModel copies the snapshot connections and orders them by total traffic,
// largest first. Ties keep their input order.
func NewModel(snap snapshot.Snapshot, fetchedAt time.Time) Model {
	connections := slices.Clone(snap.Connections)
	if connections == nil {
		connections = []snapshot.Connection{}
	}
	slices.SortStableFunc(connections, func(a, b snapshot.Connection) int {
		return cmp.Compare(b.TotalBytes(), a.TotalBytes())
	})

	processes := snap.Processes
	if processes == nil {
		processes = []snapshot.Process{}
	}

	return Model{
		Connections: connections,
		Processes:   processes,
		FetchedAt:   fetchedAt,
	}
}

// Lookup correlates socket inodes with the processes that own them.
type Lookup interface {
	ProcessByInode(processes []snapshot.Process, inode snapshot.Inode) (snapshot.Process, bool)
}

// LinearLookup scans processes in order and returns the first owner.
type LinearLookup struct{}

// ProcessByInode implements Lookup.
func (LinearLookup) ProcessByInode(processes []snapshot.Process, inode snapshot.Inode) (snapshot.Process, bool) {
	idx := slices.IndexFunc(processes, func(p snapshot.Process) bool {
		return slices.Contains(p.Inodes, inode)
	})
	if idx < 0 {
		return snapshot.Process{}, false
	}
	return processes[idx], true
}

// ProcessLabel names the process owning inode: executable, then command, then pid.
// It returns "" when no process owns the inode.
func ProcessLabel(lookup Lookup, processes []snapshot.Process, inode snapshot.Inode) string {
	proc, ok := lookup.ProcessByInode(processes, inode)
	if !ok {
		return ""
	}
	if proc.Executable != "" {
		return proc.Executable
	}
	if proc.Command != "" {
		return proc.Command
	}
	return strconv.Itoa(proc.PID)
}

// Row is a rendered table line for one connection.
type Row struct {
	Source          string `json:"source"`
	Destination     string `json:"destination"`
	Transport       string `json:"transport"`
	Inode           uint64 `json:"inode"`
	Process         string `json:"process"`
	BytesDownloaded uint64 `json:"bytes_downloaded"`
	BytesUploaded   uint64 `json:"bytes_uploaded"`
	Downloaded      string `json:"downloaded"`
	Uploaded        string `json:"uploaded"`
	Total           string `json:"total"`
}

// BuildRows renders the model's connections in display order.
func BuildRows(model Model, lookup Lookup) []Row {
	if lookup == nil {
		lookup = LinearLookup{}
	}
	rows := make([]Row, 0, len(model.Connections))
	for _, conn := range model.Connections {
		rows = append(rows, Row{
			Source:          conn.Source,
			Destination:     conn.Destination,
			Transport:       string(conn.TransportType),
			Inode:           conn.Inode,
			Process:         ProcessLabel(lookup, model.Processes, conn.Inode),
			BytesDownloaded: conn.BytesDownloaded,
			BytesUploaded:   conn.BytesUploaded,
			Downloaded:      FormatByteCount(conn.BytesDownloaded),
			Uploaded:        FormatByteCount(conn.BytesUploaded),
			Total:           FormatByteCount(conn.TotalBytes()),
		})
	}
	return rows
}
