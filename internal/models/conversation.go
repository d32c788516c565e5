package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConversationFull is returned by Conversation.Append when every slot is already filled.
	ErrConversationFull = errors.New("conversation is full")
	// ErrInvalidRole is returned by Conversation.Append for a message whose role is unknown.
	ErrInvalidRole = errors.New("invalid message role")
)

// Conversation is the transcript of one study session. A session has exactly four turns, so the
// transcript is modelled as named slots instead of a growing list. Slots are filled in order: the
// topic prompt, the generated question, the user's answer and the generated feedback.
type Conversation struct {
	TopicPrompt *Message
	Question    *Message
	Answer      *Message
	Feedback    *Message
}

// Append stores msg in the first empty slot. It returns ErrConversationFull if the conversation
// already holds four messages and ErrInvalidRole if msg has an unknown role.
func (c *Conversation) Append(msg Message) error {
	if !msg.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, msg.Role)
	}
	for _, slot := range c.slots() {
		if *slot == nil {
			*slot = &msg
			return nil
		}
	}
	return ErrConversationFull
}

// Messages returns the filled slots in conversation order.
func (c Conversation) Messages() []Message {
	msgs := make([]Message, 0, 4)
	for _, slot := range c.slots() {
		if *slot == nil {
			break
		}
		msgs = append(msgs, **slot)
	}
	return msgs
}

// Len returns the number of filled slots.
func (c Conversation) Len() int {
	return len(c.Messages())
}

// Subject returns the topic of the conversation, or an empty string if no topic was submitted.
func (c Conversation) Subject() string {
	if c.TopicPrompt == nil {
		return ""
	}
	return c.TopicPrompt.Subject
}

func (c *Conversation) slots() []**Message {
	return []**Message{&c.TopicPrompt, &c.Question, &c.Answer, &c.Feedback}
}
