package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

const MaxMessageLen = 4096

var (
	ErrMessageEmpty   = errors.New("message body empty")
	ErrMessageTooLong = errors.New("message body too long")
)

type (
	ChannelID string
	MessageID string
)

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Mime string `json:"mime,omitempty"`
}

// Message is immutable once appended to history, except for Reactions,
// which is add-only.
type Message struct {
	ID          MessageID                 `json:"id"`
	ChannelID   ChannelID                 `json:"channel_id"`
	SenderConn  ConnectionID              `json:"sender_conn"`
	SenderName  string                    `json:"sender_name"`
	Body        string                    `json:"body"`
	CreatedAt   time.Time                 `json:"created_at"`
	ReplyToID   MessageID                 `json:"reply_to_id,omitempty"`
	Attachments []Attachment              `json:"attachments,omitempty"`
	Reactions   map[string][]ConnectionID `json:"reactions,omitempty"`
}

// NewMessage stamps id and created_at server-side so ordering stays
// server-authoritative.
func NewMessage(ch ChannelID, from ConnectionID, name, body string, replyTo MessageID, atts []Attachment) (*Message, error) {
	if len(body) == 0 {
		return nil, ErrMessageEmpty
	}
	if len(body) > MaxMessageLen {
		return nil, ErrMessageTooLong
	}
	if ch == "" {
		ch = DefaultChannel
	}
	return &Message{
		ID:          MessageID(uuid.NewString()),
		ChannelID:   ch,
		SenderConn:  from,
		SenderName:  name,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
		ReplyToID:   replyTo,
		Attachments: atts,
	}, nil
}

// React records emoji from conn. Add-only: there is no removal path.
// Returns false if the connection already reacted with this emoji.
func (m *Message) React(emoji string, conn ConnectionID) bool {
	if m.Reactions == nil {
		m.Reactions = make(map[string][]ConnectionID)
	}
	for _, c := range m.Reactions[emoji] {
		if c == conn {
			return false
		}
	}
	m.Reactions[emoji] = append(m.Reactions[emoji], conn)
	return true
}
