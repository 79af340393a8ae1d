package models

import "time"

type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

// TicketSender identifies which side of a support conversation wrote a
// message.
type TicketSender string

const (
	TicketSenderUser  TicketSender = "user"
	TicketSenderAdmin TicketSender = "admin"
)

type TicketMessage struct {
	MessageID int64        `json:"message_id"`
	Sender    TicketSender `json:"sender"`
	Text      string       `json:"text"`
	CreatedAt time.Time    `json:"created_at"`
}

// Ticket is a support conversation. UpdatedAt always equals the timestamp of
// the most recently appended message.
type Ticket struct {
	TicketID  int64           `json:"ticket_id"`
	UserID    int64           `json:"user_id"`
	Status    TicketStatus    `json:"status"`
	Subject   string          `json:"subject"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Messages  []TicketMessage `json:"messages"`
}

// AppendMessage adds a message and advances UpdatedAt to its timestamp.
func (t *Ticket) AppendMessage(msg TicketMessage) {
	t.Messages = append(t.Messages, msg)
	t.UpdatedAt = msg.CreatedAt
}

func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Messages = make([]TicketMessage, len(t.Messages))
	copy(clone.Messages, t.Messages)
	return &clone
}
