package model

type SessionState string

const (
	SessionPending   SessionState = "pending"
	SessionConnected SessionState = "connected"
	SessionInactive  SessionState = "inactive"
	SessionFailed    SessionState = "failed"
)

// Live reports whether the state counts against the one-session-per-phone rule.
func (s SessionState) Live() bool {
	return s == SessionPending || s == SessionConnected
}

func (s SessionState) Valid() bool {
	switch s {
	case SessionPending, SessionConnected, SessionInactive, SessionFailed:
		return true
	}
	return false
}

type Session struct {
	ID              string
	OwnerID         string
	Phone           string
	State           SessionState
	PairingArtifact *string
	CreatedAt       int64
	UpdatedAt       int64
	Deleted         bool
}

type PromptStatus string

const (
	PromptActive   PromptStatus = "active"
	PromptInactive PromptStatus = "inactive"
)

type Prompt struct {
	ID        string
	OwnerID   string
	Phone     string
	Text      string
	Status    PromptStatus
	OriginID  *string
	CreatedAt int64
	UpdatedAt int64
}

// Customer is the billing projection of an owner.
type Customer struct {
	ID              string
	PaymentMethodID string
	TokensRemaining int64
	LastChargeAt    int64
	CreatedAt       int64
	UpdatedAt       int64
}

func (c Customer) HasPaymentMethod() bool {
	return c.PaymentMethodID != ""
}
