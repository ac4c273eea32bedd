package models

import "encoding/json"

// Message is one message of a conversation as reported by the messaging
// orchestrator.
type Message struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"` // customer, operator, system
	Timestamp string `json:"timestamp"`
}

// ConversationHistory is a page of messages from the orchestrator.
type ConversationHistory struct {
	Messages []Message `json:"messages"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}

// Contact is the orchestrator's customer record, passed through untouched.
type Contact = json.RawMessage
