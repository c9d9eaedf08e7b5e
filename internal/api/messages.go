package api

import (
	"time"

	"github.com/skobkin/conntop-web/internal/dashboard"
	"github.com/skobkin/conntop-web/internal/snapshot"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type       string          `json:"type"`
	IntervalMS int             `json:"interval_ms"`
	Source     string          `json:"source"`
	Features   map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(intervalMS int, source string, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:       "hello",
		IntervalMS: intervalMS,
		Source:     source,
		Features:   features,
	}
}

// ResultsMessage carries a published display model and its rendered rows.
type ResultsMessage struct {
	Type        string                `json:"type"`
	FetchedAt   time.Time             `json:"fetched_at"`
	Connections []snapshot.Connection `json:"connections"`
	Processes   []snapshot.Process    `json:"processes"`
	Rows        []dashboard.Row       `json:"rows"`
}

// NewResultsMessage constructs a results payload.
func NewResultsMessage(model dashboard.Model, rows []dashboard.Row) ResultsMessage {
	return ResultsMessage{
		Type:        "results",
		FetchedAt:   model.FetchedAt,
		Connections: model.Connections,
		Processes:   model.Processes,
		Rows:        rows,
	}
}

// TableResponse is the body of the rendered table endpoint.
type TableResponse struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Rows      []dashboard.Row `json:"rows"`
}

// ProcessResponse answers an inode ownership query.
type ProcessResponse struct {
	Inode   uint64 `json:"inode"`
	Process string `json:"process"`
}

// FormatResponse answers a byte formatting query.
type FormatResponse struct {
	Bytes     float64 `json:"bytes"`
	Formatted string  `json:"formatted"`
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
