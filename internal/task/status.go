package task

// Status is the position of a task in its lifecycle state machine.
type Status int

const (
	StatusPending Status = iota // In queue, waiting for a worker
	StatusExecuting
	StatusAwaitingVerification
	StatusVerified
	StatusAwaitingFactCheck
	StatusFactChecked
	StatusAwaitingApproval
	StatusApproved
	StatusDenied
	StatusTimedOut
	StatusRejected // transient: routes back to Pending or on to Failed
	StatusDispatched
	StatusCompleted
	StatusFailed
	StatusCancelled
)

var statusNames = map[Status]string{
	StatusPending:              "pending",
	StatusExecuting:            "executing",
	StatusAwaitingVerification: "awaiting_verification",
	StatusVerified:             "verified",
	StatusAwaitingFactCheck:    "awaiting_fact_check",
	StatusFactChecked:          "fact_checked",
	StatusAwaitingApproval:     "awaiting_approval",
	StatusApproved:             "approved",
	StatusDenied:               "denied",
	StatusTimedOut:             "timed_out",
	StatusRejected:             "rejected",
	StatusDispatched:           "dispatched",
	StatusCompleted:            "completed",
	StatusFailed:               "failed",
	StatusCancelled:            "cancelled",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// transitions is the allowed edge set of the state machine. A missing entry
// means no outgoing transitions (terminal). The edges back to Pending are
// the recovery path after an unrecorded stage; Pending to Failed is where a
// task whose attempts are exhausted ends up.
var transitions = map[Status][]Status{
	StatusPending:              {StatusExecuting, StatusFailed},
	StatusExecuting:            {StatusAwaitingVerification, StatusPending, StatusFailed},
	StatusAwaitingVerification: {StatusVerified, StatusRejected, StatusPending, StatusFailed},
	StatusVerified:             {StatusAwaitingFactCheck},
	StatusAwaitingFactCheck:    {StatusFactChecked, StatusRejected, StatusPending, StatusFailed},
	StatusFactChecked:          {StatusAwaitingApproval, StatusApproved},
	StatusAwaitingApproval:     {StatusApproved, StatusDenied, StatusTimedOut, StatusCancelled, StatusPending},
	StatusApproved:             {StatusDispatched, StatusFailed},
	StatusRejected:             {StatusPending, StatusFailed},
	StatusTimedOut:             {StatusFailed},
	StatusDispatched:           {StatusCompleted},
}

// CanTransition reports whether the state machine permits moving from one
// status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions. Completed,
// Failed, Denied and Cancelled end a task for good; TimedOut always collapses
// to Failed first and so is not terminal itself.
func IsTerminal(s Status) bool {
	return len(transitions[s]) == 0
}
