package domain

// RunState enumerates the states of one generation pipeline run.
type RunState string

const (
	RunStateSubmitted          RunState = "SUBMITTED"
	RunStatePolling            RunState = "POLLING"
	RunStateSucceeded          RunState = "SUCCEEDED"
	RunStateFailed             RunState = "FAILED"
	RunStateTimedOut           RunState = "TIMED_OUT"
	RunStateTransportExhausted RunState = "TRANSPORT_EXHAUSTED"
)

// IsTerminal reports whether no further state change can occur. Only
// Submitted and Polling are non-terminal; no state is ever re-entered.
func (s RunState) IsTerminal() bool {
	switch s {
	case RunStateSucceeded, RunStateFailed, RunStateTimedOut, RunStateTransportExhausted:
		return true
	}
	return false
}

// OperationVideo is one produced video in a success payload.
type OperationVideo struct {
	GCSURI   string
	MimeType string
}

// OperationResult is the success payload attached to a terminal operation.
type OperationResult struct {
	Videos []OperationVideo
}

// OperationFailure is the backend-reported error payload attached to a
// terminal operation.
type OperationFailure struct {
	Code    int
	Message string
}

// Operation is a snapshot of the backend's long-running job. Every field is
// the server's authoritative view at fetch time; the client never mutates
// fields locally, a fresh fetch replaces the whole value. At most one of
// Result and Failure is set, and only when Done is true.
type Operation struct {
	Name    string
	Done    bool
	Result  *OperationResult
	Failure *OperationFailure
}

// Failed reports whether the terminal payload carries a backend failure.
func (o Operation) Failed() bool { return o.Done && o.Failure != nil }
