package models

// Notification is a persisted copy of an event addressed to one member.
type Notification struct {
	ID       string
	MemberID string
	Kind     string
	Title    string
	Message  string

	// Data is the JSON encoding of the typed event payload.
	Data []byte

	Read      bool
	CreatedAt int64
}
