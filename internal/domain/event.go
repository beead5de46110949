package domain

// Real-time event names delivered to clients.
const (
	EventTaskUpdate   = "taskUpdate"
	EventNotification = "notification"
	EventError        = "error"
)

type TaskEventType string

const (
	TaskEventAssigned      TaskEventType = "TASK_ASSIGNED"
	TaskEventUpdated       TaskEventType = "TASK_UPDATED"
	TaskEventDeleted       TaskEventType = "TASK_DELETED"
	TaskEventStatusChanged TaskEventType = "STATUS_CHANGED"
	TaskEventArchived      TaskEventType = "TASK_ARCHIVED"
)

// TaskEvent is the payload of a taskUpdate event.
type TaskEvent struct {
	Type TaskEventType `json:"type"`
	Task *Task         `json:"task"`
}

// Removes reports whether the event takes the task off the board.
func (e TaskEvent) Removes() bool {
	if e.Type == TaskEventDeleted || e.Type == TaskEventArchived {
		return true
	}
	return e.Task != nil && !e.Task.IsActive
}
