package domain

import "time"

// MatchStatus is the review state of a match. The matching core sets
// pending at creation and never changes it; accepted/rejected are set by
// downstream staff review.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// ParseMatchStatus validates a status string.
func ParseMatchStatus(s string) (MatchStatus, error) {
	switch MatchStatus(s) {
	case MatchPending, MatchAccepted, MatchRejected:
		return MatchStatus(s), nil
	}
	return "", ErrInvalidStatus
}

// Match links a request to a found item. Matches are exclusively owned by
// their parent request: the persisted set always reflects exactly the most
// recent matching run and is replaced wholesale, never merged.
type Match struct {
	FoundID    string
	Distance   float64
	Confidence float64
	Rank       int
	Status     MatchStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Candidate is a single nearest-neighbor hit before thresholding.
type Candidate struct {
	FoundID  string
	Distance float64
	// Synthetic marks a distance estimated from rank position because the
	// backing index omitted the real value (degraded mode).
	Synthetic bool
}
