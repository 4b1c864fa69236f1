// Package render converts domain records to the generic maps served by the HTTP API and carried
// in admin gRPC Structs. Times are RFC 3339 strings in UTC; absent values are nil.
package render

import (
	"encoding/json"
	"time"

	auditdomain "kiosk-engine/internal/audit/domain"
	devicedomain "kiosk-engine/internal/device/domain"
	handoffdomain "kiosk-engine/internal/handoff/domain"
	"kiosk-engine/internal/presence"
	"kiosk-engine/internal/session/aggregate"
	"kiosk-engine/internal/session/domain"
)

func timeValue(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func timePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return timeValue(*t)
}

// Flags returns every flag keyed by its storage name.
func Flags(f domain.Flags) map[string]any {
	out := make(map[string]any, len(domain.AllFlags))
	for _, flag := range domain.AllFlags {
		out[string(flag)] = f.Has(flag)
	}
	return out
}

func Session(s *domain.Session) map[string]any {
	var duration any
	if s.DurationSeconds != nil {
		duration = *s.DurationSeconds
	}
	return map[string]any{
		"id":              s.ID,
		"kioskId":         s.KioskID,
		"startedAt":       timeValue(s.StartedAt),
		"endedAt":         timePtr(s.EndedAt),
		"outcome":         string(s.Outcome),
		"totalEvents":     s.TotalEvents,
		"durationSeconds": duration,
		"flags":           Flags(s.Flags),
	}
}

func Event(e *domain.Event) map[string]any {
	var details any
	if len(e.Details) > 0 {
		details = e.Details
	}
	return map[string]any{
		"id":         e.ID,
		"sessionId":  e.SessionID,
		"category":   e.Category,
		"action":     e.Action,
		"details":    details,
		"occurredAt": timeValue(e.OccurredAt),
	}
}

// Events returns the events as a list suitable for a Struct value.
func Events(events []*domain.Event) []any {
	out := make([]any, 0, len(events))
	for _, e := range events {
		out = append(out, Event(e))
	}
	return out
}

func Summary(s aggregate.Summary) map[string]any {
	outcomes := make(map[string]any, len(s.OutcomeBreakdown))
	for o, n := range s.OutcomeBreakdown {
		outcomes[string(o)] = n
	}
	features := make(map[string]any, len(s.FeatureUsage))
	for f, n := range s.FeatureUsage {
		features[string(f)] = n
	}
	return map[string]any{
		"totalSessions":    s.TotalSessions,
		"totalEvents":      s.TotalEvents,
		"averageDuration":  s.AverageDuration,
		"outcomeBreakdown": outcomes,
		"featureUsage":     features,
		"finished":         s.Finished,
		"completed":        s.Completed,
		"conversionRate":   s.ConversionRate,
	}
}

func Device(d *devicedomain.Device) map[string]any {
	return map[string]any{
		"kioskId":         d.KioskID,
		"isActive":        d.IsActive,
		"lastHeartbeatAt": timePtr(d.LastHeartbeatAt),
		"createdAt":       timeValue(d.CreatedAt),
	}
}

// Fleet returns one entry per kiosk with its device fields, status and open-session flag.
func Fleet(rows []presence.KioskPresence) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		m := Device(row.Device)
		m["status"] = string(row.Status)
		m["hasActiveSession"] = row.HasActiveSession
		out = append(out, m)
	}
	return out
}

// Handoff renders h as observed at now. The image payload is never included.
func Handoff(h *handoffdomain.Handoff, now time.Time) map[string]any {
	m := map[string]any{
		"token":           h.Token,
		"slotIndex":       int64(h.SlotIndex),
		"parentSessionId": h.ParentSessionID,
		"status":          string(h.EffectiveStatus(now)),
		"createdAt":       timeValue(h.CreatedAt),
		"expiresAt":       timeValue(h.ExpiresAt),
		"completedAt":     timePtr(h.CompletedAt),
		"hasImage":        h.Image != nil,
	}
	if h.Image != nil {
		m["contentType"] = h.Image.ContentType
		m["imageSize"] = h.Image.Size
	}
	return m
}

// AuditLog renders entries with their metadata decoded back into an object when it is valid JSON.
func AuditLog(entries []*auditdomain.AuditLog) []any {
	out := make([]any, 0, len(entries))
	for _, a := range entries {
		var meta any
		if a.Metadata != "" {
			var m map[string]any
			if err := json.Unmarshal([]byte(a.Metadata), &m); err == nil {
				meta = m
			} else {
				meta = a.Metadata
			}
		}
		out = append(out, map[string]any{
			"id":        a.ID,
			"subject":   a.Subject,
			"action":    a.Action,
			"resource":  a.Resource,
			"ip":        a.IP,
			"metadata":  meta,
			"createdAt": timeValue(a.CreatedAt),
		})
	}
	return out
}
