package domain

import "time"

// AuditLog records one admin mutation: who called which method against what, from where, and how
// it ended.
type AuditLog struct {
	ID       string
	Subject  string
	Action   string
	Resource string
	IP       string
	// Metadata is a JSON object with the request fields and the resulting gRPC code.
	Metadata  string
	CreatedAt time.Time
}
