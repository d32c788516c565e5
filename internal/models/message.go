package models

// Message is a single entry of a study conversation. Messages are immutable once they are appended to
// a Conversation.
type Message struct {
	Role    Role
	Content string

	// Subject is only set on the topic prompt and holds the topic as the user typed it.
	Subject string
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a message written by the user, or a prompt sent on the user's behalf.
	RoleUser Role = "user"
	// RoleModel represents a message produced by the generative model.
	RoleModel Role = "model"
	// RoleSystem represents an instruction message for the model.
	RoleSystem Role = "system"
	// RoleFunction represents a function result message.
	RoleFunction Role = "function"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleModel, RoleSystem, RoleFunction:
		return true
	}
	return false
}
