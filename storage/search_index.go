package storage

import (
	"strings"
	"time"

	"toolchat/model"
)

type SessionMessageMatch struct {
	SessionID    string
	SessionTitle string
	MessageID    string
	MessageIndex int
	Role         string
	Preview      string
	Timestamp    time.Time
}

// SearchSessions finds messages containing query (case-insensitive) across
// sessions, in session order.
func SearchSessions(sessions []*model.ChatSession, query string) []SessionMessageMatch {
	query = strings.TrimSpace(query)
	if query == "" {
		return []SessionMessageMatch{}
	}

	queryLower := strings.ToLower(query)
	var matches []SessionMessageMatch

	for _, session := range sessions {
		for i, msg := range session.Messages {
			if !strings.Contains(strings.ToLower(msg.Content), queryLower) {
				continue
			}
			matches = append(matches, SessionMessageMatch{
				SessionID:    session.ID,
				SessionTitle: session.Title,
				MessageID:    msg.ID,
				MessageIndex: i,
				Role:         msg.Role,
				Preview:      preview(msg.Content, queryLower),
				Timestamp:    msg.Timestamp,
			})
		}
	}

	return matches
}

// preview returns up to 100 bytes of content around the first match.
func preview(content, queryLower string) string {
	idx := strings.Index(strings.ToLower(content), queryLower)
	start := 0
	if idx > 40 && idx < len(content) {
		start = idx - 40
	}
	end := start + 100
	if end > len(content) {
		end = len(content)
	}

	// Stay on rune boundaries
	for start > 0 && !isRuneStart(content[start]) {
		start--
	}
	for end < len(content) && !isRuneStart(content[end]) {
		end++
	}

	out := strings.ReplaceAll(content[start:end], "\n", " ")
	if start > 0 {
		out = "..." + out
	}
	if end < len(content) {
		out += "..."
	}
	return out
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
