package domain

import "time"

// Outcome is how a kiosk session ended.
type Outcome string

const (
	OutcomeInProgress     Outcome = "in_progress"
	OutcomePrintedCard    Outcome = "printed_card"
	OutcomePrintedSticker Outcome = "printed_sticker"
	OutcomeSentDigital    Outcome = "sent_digital"
	OutcomeAbandoned      Outcome = "abandoned"
)

// Outcomes lists every outcome in reporting order.
var Outcomes = []Outcome{
	OutcomeInProgress,
	OutcomePrintedCard,
	OutcomePrintedSticker,
	OutcomeSentDigital,
	OutcomeAbandoned,
}

// Valid reports whether o is a known outcome.
func (o Outcome) Valid() bool {
	for _, k := range Outcomes {
		if o == k {
			return true
		}
	}
	return false
}

// Completed reports whether o is a purchase (printed or sent).
func (o Outcome) Completed() bool {
	return o == OutcomePrintedCard || o == OutcomePrintedSticker || o == OutcomeSentDigital
}

// Session is one customer interaction at a kiosk. It is open while Outcome is in_progress;
// EndedAt and DurationSeconds are set exactly once when it closes.
type Session struct {
	ID              string
	KioskID         string
	StartedAt       time.Time
	EndedAt         *time.Time
	Outcome         Outcome
	TotalEvents     int64
	DurationSeconds *int64
	Flags           Flags
}

// Open reports whether the session is still in progress.
func (s *Session) Open() bool {
	return s.Outcome == OutcomeInProgress
}

// Event is an append-only behavioral event within a session.
type Event struct {
	ID         string
	SessionID  string
	Category   string
	Action     string
	Details    map[string]any
	OccurredAt time.Time
}

// DurationSeconds returns whole seconds from startedAt to endedAt, floored at zero.
func DurationSeconds(startedAt, endedAt time.Time) int64 {
	d := int64(endedAt.Sub(startedAt) / time.Second)
	if d < 0 {
		return 0
	}
	return d
}
