package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseClientMessageAddTask(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"add_task","text":"Buy milk"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	add, ok := msg.(AddTask)
	if !ok {
		t.Fatalf("message type = %T, want AddTask", msg)
	}
	if add.Text != "Buy milk" {
		t.Fatalf("Text = %q, want %q", add.Text, "Buy milk")
	}
}

func TestParseClientMessageAddTaskKeepsBlankText(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"add_task","text":"   "}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(AddTask); !ok {
		t.Fatalf("message type = %T, want AddTask", msg)
	}
}

func TestParseClientMessageToggleAndDelete(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"toggle_task","id":"t1"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if toggle, ok := msg.(ToggleTask); !ok || toggle.ID != "t1" {
		t.Fatalf("unexpected toggle message: %#v", msg)
	}

	msg, err = ParseClientMessage([]byte(`{"type":"delete_task","id":"t2"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if del, ok := msg.(DeleteTask); !ok || del.ID != "t2" {
		t.Fatalf("unexpected delete message: %#v", msg)
	}
}

func TestParseClientMessageClearCompleted(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"clear_completed"}`))
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}
	if _, ok := msg.(ClearCompleted); !ok {
		t.Fatalf("message type = %T, want ClearCompleted", msg)
	}
}

func TestParseClientMessageRejectsMissingID(t *testing.T) {
	for _, raw := range []string{
		`{"type":"toggle_task"}`,
		`{"type":"delete_task","id":"  "}`,
	} {
		if _, err := ParseClientMessage([]byte(raw)); err == nil {
			t.Fatalf("ParseClientMessage(%s) error = nil, want validation error", raw)
		}
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}

	// Server-to-client types are not accepted inbound.
	_, err = ParseClientMessage([]byte(`{"type":"tasks_snapshot","tasks":[]}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidJSON(t *testing.T) {
	if _, err := ParseClientMessage([]byte(`{"type":`)); err == nil {
		t.Fatalf("expected envelope error")
	}
}

func TestTasksSnapshotWireFormat(t *testing.T) {
	raw, err := json.Marshal(TasksSnapshot{
		Type:    TypeTasksSnapshot,
		Version: 3,
		Tasks:   []TaskItem{{ID: "1", Text: "A", Completed: true}},
		Counts:  TaskCounts{Total: 1, Completed: 1},
	})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"type":"tasks_snapshot","version":3,"tasks":[{"id":"1","text":"A","completed":true}],"counts":{"total":1,"completed":1,"active":0}}`
	if string(raw) != want {
		t.Fatalf("snapshot JSON = %s, want %s", raw, want)
	}
}

func BenchmarkParseClientMessageAddTask(b *testing.B) {
	raw := []byte(`{"type":"add_task","text":"Pick up the dry cleaning before six"}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(AddTask); !ok {
			b.Fatalf("message type = %T, want AddTask", msg)
		}
	}
}
