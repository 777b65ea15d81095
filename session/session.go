// Package session holds per-conversation state: the dataset mapping,
// message history, knowledge notes, and artifact index. A session's
// datasets are mutated only by the currently-executing skill under the
// lane queue's lock; this package does not serialize access itself.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/datamind-ai/datamind/types"
)

// Note is one entry in the session's knowledge store.
type Note struct {
	Topic     string    `json:"topic"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolCallRecord is one recorded tool invocation, kept so a session's
// history can later be distilled into a workflow template.
type ToolCallRecord struct {
	ID        string         `json:"id"`
	Skill     string         `json:"skill"`
	Params    map[string]any `json:"params"`
	Success   bool           `json:"success"`
	Timestamp time.Time      `json:"timestamp"`
}

// Session is the unit of conversation state.
type Session struct {
	ID        string                    `json:"id"`
	Datasets  map[string]*types.Dataset `json:"datasets"`
	Messages  []types.Message           `json:"messages"`
	Knowledge []Note                    `json:"knowledge"`
	Artifacts []types.Artifact          `json:"artifacts"`
	ToolCalls []ToolCallRecord          `json:"tool_calls"`
	CreatedAt time.Time                 `json:"created_at"`
}

// New creates an empty session with a fresh ID.
func New() *Session {
	return &Session{
		ID:        uuid.NewString(),
		Datasets:  make(map[string]*types.Dataset),
		CreatedAt: time.Now(),
	}
}

// SetDataset stores (or replaces) a named dataset.
func (s *Session) SetDataset(name string, ds *types.Dataset) {
	s.Datasets[name] = ds
}

// Dataset returns the named dataset.
func (s *Session) Dataset(name string) (*types.Dataset, bool) {
	ds, ok := s.Datasets[name]
	return ds, ok
}

// DatasetNames returns the names of all datasets, unordered.
func (s *Session) DatasetNames() []string {
	names := make([]string, 0, len(s.Datasets))
	for name := range s.Datasets {
		names = append(names, name)
	}
	return names
}

// AppendMessage appends to the ordered, append-only message history.
func (s *Session) AppendMessage(msg types.Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Messages = append(s.Messages, msg)
}

// AddKnowledge appends a knowledge note.
func (s *Session) AddKnowledge(topic, content string) {
	s.Knowledge = append(s.Knowledge, Note{Topic: topic, Content: content, CreatedAt: time.Now()})
}

// AddArtifact indexes an artifact produced during execution.
func (s *Session) AddArtifact(a types.Artifact) {
	s.Artifacts = append(s.Artifacts, a)
}

// RecordToolCall appends one tool invocation to the session history.
func (s *Session) RecordToolCall(id, skill string, params map[string]any, success bool) {
	s.ToolCalls = append(s.ToolCalls, ToolCallRecord{
		ID:        id,
		Skill:     skill,
		Params:    params,
		Success:   success,
		Timestamp: time.Now(),
	})
}
