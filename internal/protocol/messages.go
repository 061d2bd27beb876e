package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeAddTask        MessageType = "add_task"
	TypeToggleTask     MessageType = "toggle_task"
	TypeDeleteTask     MessageType = "delete_task"
	TypeClearCompleted MessageType = "clear_completed"
	TypeTasksSnapshot  MessageType = "tasks_snapshot"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type AddTask struct {
	Type MessageType `json:"type"`
	Text string      `json:"text"`
}

type ToggleTask struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

type DeleteTask struct {
	Type MessageType `json:"type"`
	ID   string      `json:"id"`
}

type ClearCompleted struct {
	Type MessageType `json:"type"`
}

type TaskItem struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type TaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Active    int `json:"active"`
}

// TasksSnapshot carries the whole list; clients replace their copy with it.
type TasksSnapshot struct {
	Type    MessageType `json:"type"`
	Version uint64      `json:"version"`
	Tasks   []TaskItem  `json:"tasks"`
	Counts  TaskCounts  `json:"counts"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	Code      string      `json:"code"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one inbound websocket frame. Blank add_task text
// is accepted here; the task store decides whether it becomes a task.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAddTask:
		var msg AddTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypeToggleTask:
		var msg ToggleTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ID) == "" {
			return nil, errors.New("invalid toggle_task")
		}
		return msg, nil
	case TypeDeleteTask:
		var msg DeleteTask
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if strings.TrimSpace(msg.ID) == "" {
			return nil, errors.New("invalid delete_task")
		}
		return msg, nil
	case TypeClearCompleted:
		return ClearCompleted{Type: TypeClearCompleted}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
