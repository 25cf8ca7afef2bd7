package conversation

import "testing"

func TestResetKeepsSystemMessage(t *testing.T) {
	s := NewSession("be kind")
	s.AppendUser("user1")
	s.AppendAssistant("assistant1")
	s.AppendUser("user2")
	if s.Len() != 4 {
		t.Fatalf("expected 4 messages, got %d", s.Len())
	}

	s.Reset()

	history := s.History()
	if len(history) != 1 {
		t.Fatalf("expected only the system message, got %v", history)
	}
	if history[0].Role != RoleSystem || history[0].Content != "be kind" {
		t.Fatalf("unexpected system message %+v", history[0])
	}

	s.AppendUser("again")
	if got := s.History(); len(got) != 2 || got[1].Content != "again" {
		t.Fatalf("unexpected history after reset %v", got)
	}
}

func TestHistoryIsACopy(t *testing.T) {
	s := NewSession("sys")
	s.AppendUser("hi")
	h := s.History()
	h[1].Content = "changed"
	if s.History()[1].Content != "hi" {
		t.Fatal("history mutation leaked into session")
	}
}

func TestHistoryOrder(t *testing.T) {
	s := NewSession("sys")
	s.AppendUser("a")
	s.AppendAssistant("b")
	want := []Role{RoleSystem, RoleUser, RoleAssistant}
	for i, m := range s.History() {
		if m.Role != want[i] {
			t.Fatalf("message %d: expected %s, got %s", i, want[i], m.Role)
		}
	}
}

func TestResetOnEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	var s Session
	s.Reset()
}

func TestRestore(t *testing.T) {
	s := Restore("abc", "sys", []Message{{Role: RoleUser, Content: "hi"}})
	if s.ID() != "abc" {
		t.Fatalf("unexpected id %s", s.ID())
	}
	h := s.History()
	if len(h) != 2 || h[0].Role != RoleSystem {
		t.Fatalf("expected system prompt prepended, got %v", h)
	}
	s = NewSession("sys")
	if s.ID() == "" {
		t.Fatal("expected generated id")
	}
}
