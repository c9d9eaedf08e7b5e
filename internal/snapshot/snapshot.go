// Package snapshot defines the connection/process payload served by the backend.
package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Inode identifies a socket owned by a process.
type Inode = uint64

// TransportType names the transport protocol of a connection.
type TransportType string

const (
	TransportTCP TransportType = "Tcp"
	TransportUDP TransportType = "Udp"
)

// Snapshot is a complete view of connections and processes at one point in time.
type Snapshot struct {
	Connections []Connection `json:"connections"`
	Processes   []Process    `json:"processes"`
}

// Connection describes a single observed network flow.
type Connection struct {
	Source          string        `json:"source"`
	Destination     string        `json:"destination"`
	Inode           Inode         `json:"inode"`
	ProcessID       int           `json:"process_id"`
	TransportType   TransportType `json:"transport_type"`
	BytesUploaded   uint64        `json:"bytes_uploaded"`
	BytesDownloaded uint64        `json:"bytes_downloaded"`
	FirstSeen       Timestamp     `json:"first_seen"`
	LastSeen        Timestamp     `json:"last_seen"`
}

// TotalBytes returns downloaded plus uploaded bytes.
func (c Connection) TotalBytes() uint64 {
	return c.BytesDownloaded + c.BytesUploaded
}

// Process describes a process and the socket inodes it holds.
type Process struct {
	PID        int     `json:"pid"`
	Executable string  `json:"executable,omitempty"`
	Command    string  `json:"command,omitempty"`
	Inodes     []Inode `json:"inodes"`
}

// Decode parses a snapshot body. The connections array is mandatory.
func Decode(data []byte) (Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, err
	}
	if snap.Connections == nil {
		return Snapshot{}, fmt.Errorf("missing connections array")
	}
	if snap.Processes == nil {
		snap.Processes = []Process{}
	}
	return snap, nil
}

// Timestamp is a wall-clock instant tolerant of several wire encodings.
type Timestamp struct {
	time.Time
}

type epochTime struct {
	Secs  *int64 `json:"secs_since_epoch"`
	Nanos int64  `json:"nanos_since_epoch"`
}

// MarshalJSON renders the timestamp as RFC 3339, or null when unset.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts {"secs_since_epoch","nanos_since_epoch"}, an RFC 3339
// string, unix seconds, or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	switch data[0] {
	case '{':
		var raw epochTime
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode epoch timestamp: %w", err)
		}
		if raw.Secs == nil {
			return fmt.Errorf("epoch timestamp missing secs_since_epoch")
		}
		t.Time = time.Unix(*raw.Secs, raw.Nanos).UTC()
		return nil
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
		t.Time = parsed.UTC()
		return nil
	default:
		secs, err := strconv.ParseFloat(string(data), 64)
		if err != nil {
			return fmt.Errorf("parse unix timestamp %q: %w", string(data), err)
		}
		whole := int64(secs)
		nanos := int64((secs - float64(whole)) * float64(time.Second))
		t.Time = time.Unix(whole, nanos).UTC()
		return nil
	}
}
