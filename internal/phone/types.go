// Package phone holds the simulated handset state: contacts, call history, chat threads,
// the dial pad and which screen is showing.
package phone

import (
	"errors"
	"time"
)

var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrEmptyMessage   = errors.New("message text is empty")
	ErrNumberRequired = errors.New("number is required")
)

type Contact struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number string `json:"number"`
	Avatar string `json:"avatar"`
}

type CallType string

const (
	CallIncoming CallType = "incoming"
	CallOutgoing CallType = "outgoing"
	CallMissed   CallType = "missed"
)

type CallLog struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Type      CallType  `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type Sender string

const (
	SenderMe   Sender = "me"
	SenderThem Sender = "them"
)

type Message struct {
	ID        string    `json:"id"`
	Sender    Sender    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatThread struct {
	ID          string    `json:"id"`
	ContactName string    `json:"contact_name"`
	Number      string    `json:"number"`
	LastMessage string    `json:"last_message"`
	Timestamp   time.Time `json:"timestamp"`
	Messages    []Message `json:"messages"`
}

// DefaultContacts is the address book a fresh handset starts with.
func DefaultContacts() []Contact {
	return []Contact{
		{ID: "1", Name: "Gemini Assistant", Number: "001", Avatar: "https://picsum.photos/seed/gemini/200"},
		{ID: "2", Name: "John Doe", Number: "+31 6 12345678", Avatar: "https://picsum.photos/seed/john/200"},
		{ID: "3", Name: "Jane Smith", Number: "+1 555 0199", Avatar: "https://picsum.photos/seed/jane/200"},
		{ID: "4", Name: "Tech Support", Number: "800-AI-HELP", Avatar: "https://picsum.photos/seed/tech/200"},
	}
}
