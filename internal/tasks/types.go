package tasks

import "strings"

// Task is a single to-do item. The JSON shape is the persisted wire format.
type Task struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

type FilterMode string

const (
	FilterAll       FilterMode = "all"
	FilterActive    FilterMode = "active"
	FilterCompleted FilterMode = "completed"
)

// FilterModes lists the modes in display order.
var FilterModes = []FilterMode{FilterAll, FilterActive, FilterCompleted}

// ParseFilterMode accepts a mode name case-insensitively. An empty string means all.
func ParseFilterMode(raw string) (FilterMode, bool) {
	switch FilterMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", FilterAll:
		return FilterAll, true
	case FilterActive:
		return FilterActive, true
	case FilterCompleted:
		return FilterCompleted, true
	default:
		return FilterAll, false
	}
}

// Matches reports whether t belongs to the view selected by m. Unknown modes match everything.
func (m FilterMode) Matches(t Task) bool {
	switch m {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

type Counts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Active    int `json:"active"`
}

func countTasks(list []Task) Counts {
	c := Counts{Total: len(list)}
	for _, t := range list {
		if t.Completed {
			c.Completed++
		}
	}
	c.Active = c.Total - c.Completed
	return c
}

// Snapshot is the full list state handed to subscribers and to the save queue.
type Snapshot struct {
	Version uint64 `json:"version"`
	Tasks   []Task `json:"tasks"`
	Counts  Counts `json:"counts"`
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Tasks = cloneTasks(s.Tasks)
	return out
}

func cloneTasks(in []Task) []Task {
	out := make([]Task, len(in))
	copy(out, in)
	return out
}

func filterTasks(list []Task, mode FilterMode) []Task {
	out := make([]Task, 0, len(list))
	for _, t := range list {
		if mode.Matches(t) {
			out = append(out, t)
		}
	}
	return out
}
