package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"sous-chef/internal/domain"
)

// AppendMessage records one message at the end of a thread.
func (s *Store) AppendMessage(ctx context.Context, threadID string, msg domain.Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	callsJSON, err := json.Marshal(msg.ToolCalls)
	if err != nil {
		return fmt.Errorf("marshal tool calls: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO messages (id, thread_id, role, content, name, tool_call_id, tool_calls, created_at) "+
			"VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		newID(), threadID, msg.Role, msg.Content, msg.Name, msg.ToolCallID,
		string(callsJSON), msg.Timestamp.Format(time.RFC3339Nano),
	)
	return err
}

// History returns the most recent limit messages of a thread in oldest-first
// order. ULID primary keys make "ORDER BY id" chronological even when two
// messages share a timestamp.
func (s *Store) History(ctx context.Context, threadID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content, name, tool_call_id, tool_calls, created_at FROM messages "+
			"WHERE thread_id = ? ORDER BY id DESC LIMIT ?",
		threadID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var newestFirst []domain.Message
	for rows.Next() {
		var m domain.Message
		var callsStr, createdStr string
		if err := rows.Scan(&m.Role, &m.Content, &m.Name, &m.ToolCallID, &callsStr, &createdStr); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(callsStr), &m.ToolCalls); err != nil {
			return nil, fmt.Errorf("unmarshal tool calls: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, createdStr)
		newestFirst = append(newestFirst, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.Message, len(newestFirst))
	for i, m := range newestFirst {
		out[len(newestFirst)-1-i] = m
	}
	return out, nil
}
