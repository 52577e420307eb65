package chat

import (
	"context"
	"errors"
	"testing"
)

var _ Client = (*MockClient)(nil)

func TestMockClient_PostMessage(t *testing.T) {
	m := NewMockClient()
	ctx := context.Background()

	ts1, err := m.PostMessage(ctx, Message{ChannelID: "U1", Text: "one"})
	if err != nil {
		t.Fatal(err)
	}
	ts2, _ := m.PostMessage(ctx, Message{ChannelID: "U1", ThreadTS: ts1, Text: "two"})
	if ts1 == ts2 {
		t.Errorf("timestamps should differ: %s", ts1)
	}
	if m.SentCount() != 2 {
		t.Errorf("SentCount = %d, want 2", m.SentCount())
	}
	last, ok := m.LastSent()
	if !ok || last.Text != "two" || last.ThreadTS != ts1 {
		t.Errorf("LastSent = %+v", last)
	}
}

func TestMockClient_Failures(t *testing.T) {
	m := NewMockClient()
	m.FailThreads["9.9"] = true
	if _, err := m.PostMessage(context.Background(), Message{ThreadTS: "9.9"}); err == nil {
		t.Error("expected failure for configured thread")
	}
	m.PostErr = errors.New("down")
	if _, err := m.PostMessage(context.Background(), Message{}); err == nil {
		t.Error("expected PostErr")
	}
	if m.SentCount() != 0 {
		t.Errorf("failed posts recorded: %d", m.SentCount())
	}
}

func TestFilterUsers(t *testing.T) {
	users := []User{{ID: "U1", Name: "Alice Smith"}, {ID: "U2", Name: "Bob"}, {ID: "U3", Name: "alicia"}}
	tests := []struct {
		query string
		want  int
	}{
		{"ali", 2},
		{"ALICE", 1},
		{"bob", 1},
		{"zed", 0},
		{"", 0},
		{"  ", 0},
	}
	for _, tt := range tests {
		if got := FilterUsers(users, tt.query); len(got) != tt.want {
			t.Errorf("FilterUsers(%q) = %d users, want %d", tt.query, len(got), tt.want)
		}
	}
}
