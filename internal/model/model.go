// Package model defines the domain types used across the application.
package model

import "time"

// ChatMessage is an inbound room message as delivered by the transport.
type ChatMessage struct {
	Timestamp  time.Time
	SenderID   string
	SenderNick string
	Room       string
	Body       string
}

// LogRecord is a persisted ChatMessage.
type LogRecord struct {
	ID int64
	ChatMessage
}

// SchemaVersion is one row of the chat log schema history.
type SchemaVersion struct {
	ID        int64
	AppliedAt time.Time
	Version   string
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// Filter is a single matching rule attached to a feed task.
type Filter struct {
	Kind  FilterKind
	Value string
}

// FeedTask describes one configured feed.
type FeedTask struct {
	Prefix       string
	URL          string
	PollInterval time.Duration
	IncludeBody  bool
	Filters      []Filter
}

// OutboundMessage is a message waiting to be sent. An empty To means the
// default room.
type OutboundMessage struct {
	To   string
	Body string
}

// LinkJob is a single URL waiting for title resolution.
type LinkJob struct {
	Target string
	URL    string
}
