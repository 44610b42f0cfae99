package service

// Event is the payload pushed to stream subscribers on every state
// transition.
type Event struct {
	Type            string `json:"type"`
	DisputeID       string `json:"dispute_id,omitempty"`
	InvestigationID string `json:"investigation_id,omitempty"`
	Status          string `json:"status,omitempty"`
	Outcome         string `json:"outcome,omitempty"`
	Verdict         string `json:"verdict,omitempty"`
}

const (
	EventDisputeCreated      = "dispute.created"
	EventDisputeAccepted     = "dispute.accepted"
	EventDisputeRejected     = "dispute.rejected"
	EventDisputeRefunded     = "dispute.refunded"
	EventDisputeAnswered     = "dispute.answered"
	EventDisputeResolved     = "dispute.resolved"
	EventDisputeClaimed      = "dispute.claimed"
	EventInvestigationOpened = "investigation.opened"
	EventInvestigationVote   = "investigation.vote"
	EventInvestigationClosed = "investigation.closed"
)

// Publisher fans an event out to connected stream clients. Publishing is
// fire-and-forget; a nil publisher is valid and drops everything.
type Publisher interface {
	Publish(event Event)
}

func publish(p Publisher, event Event) {
	if p == nil {
		return
	}
	p.Publish(event)
}
