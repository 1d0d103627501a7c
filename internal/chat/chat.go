// Package chat defines the transport-neutral event and message types the
// core exchanges with the outside world. Handlers consume Events and emit
// Messages as data; only the telegram package talks to an API.
package chat

// EventKind distinguishes a typed text message from an inline button press.
type EventKind string

const (
	EventText        EventKind = "text"
	EventButtonPress EventKind = "button_press"
)

// Profile is the sender identity the transport observed with the event.
type Profile struct {
	Username  string
	FirstName string
	LastName  string
}

// Event is a single inbound user interaction.
type Event struct {
	SenderID int64
	Kind     EventKind
	Payload  string
	Profile  Profile
}

// Message is a single outbound message addressed to a chat. Keyboard and
// Inline are optional and mutually exclusive in practice.
type Message struct {
	RecipientID int64
	Text        string
	Keyboard    *Keyboard
	Inline      *InlineKeyboard
}

// Keyboard is a reply keyboard layout: rows of plain text buttons.
type Keyboard struct {
	Rows [][]string
}

// InlineKeyboard is an inline keyboard layout: rows of callback buttons.
type InlineKeyboard struct {
	Rows [][]InlineButton
}

// InlineButton is one inline keyboard button; pressing it produces a
// button_press Event carrying Data as the payload.
type InlineButton struct {
	Text string
	Data string
}

// NewMessage builds a plain text message.
func NewMessage(recipientID int64, text string) Message {
	return Message{RecipientID: recipientID, Text: text}
}

// WithKeyboard attaches a reply keyboard to the message.
func (m Message) WithKeyboard(kb *Keyboard) Message {
	m.Keyboard = kb
	return m
}

// WithInline attaches an inline keyboard to the message.
func (m Message) WithInline(ik *InlineKeyboard) Message {
	m.Inline = ik
	return m
}
