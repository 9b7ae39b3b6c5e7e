package domain

// Desire is the user intent driving the session orchestrator.
type Desire string

const (
	DesireIdle    Desire = "IDLE"
	DesireSharing Desire = "SHARING"
)

// ConferenceName is the lower-cased name of a conference room.
type ConferenceName string
