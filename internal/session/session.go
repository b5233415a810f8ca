// Package session implements the bounded sliding-window store for recent
// conversation turns: one session per (chat-kind, target-id) pair, trimmed
// by turn count and token budget, expired by inactivity.
package session

import (
	"strconv"
	"time"
)

// Turn is one user-message/bot-response pair. Attachments are retained as
// textual markers only; binary payloads never enter the window.
type Turn struct {
	UserMessage       string    `json:"user_message"`
	BotResponse       string    `json:"bot_response"`
	Timestamp         time.Time `json:"timestamp"`
	EstimatedTokens   int       `json:"estimated_tokens"`
	AttachmentMarkers []string  `json:"attachment_markers,omitempty"`
}

// Session holds the sliding window for one conversation.
// TotalTokens is a denormalized running sum and always equals the sum of
// EstimatedTokens over the retained turns.
type Session struct {
	ID          string    `json:"session_id"`
	IsGroup     bool      `json:"is_group"`
	TargetID    int64     `json:"target_id"`
	Turns       []Turn    `json:"turns"`
	LastActive  time.Time `json:"last_active"`
	TotalTokens int       `json:"total_tokens"`
}

// Key returns the deterministic session key for a conversation pair:
// "group_<id>" or "private_<id>".
func Key(isGroup bool, targetID int64) string {
	if isGroup {
		return "group_" + strconv.FormatInt(targetID, 10)
	}
	return "private_" + strconv.FormatInt(targetID, 10)
}
