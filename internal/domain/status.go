package domain

// Status is the lifecycle state of a request. Values are persisted verbatim.
type Status string

const (
	StatusPending      Status = "pending"
	StatusPendingEmail Status = "pending_email"
	StatusCompleted    Status = "completed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusPendingEmail, StatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool { return s == StatusCompleted }

// transitions is the closed table of legal status moves. Preconditions on
// record fields (edited image attached, email present) are enforced by the
// lifecycle service on top of this table.
var transitions = map[Status][]Status{
	StatusPending:      {StatusPendingEmail},
	StatusPendingEmail: {StatusCompleted},
	StatusCompleted:    {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
