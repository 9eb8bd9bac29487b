package types

import "time"

// TaskState is the state of a single Swarm task, as reported by the
// engine API (task.Status.State / task.DesiredState).
type TaskState string

const (
	TaskStateNew        TaskState = "new"
	TaskStateAllocated  TaskState = "allocated"
	TaskStatePending    TaskState = "pending"
	TaskStateAssigned   TaskState = "assigned"
	TaskStateAccepted   TaskState = "accepted"
	TaskStatePreparing  TaskState = "preparing"
	TaskStateReady      TaskState = "ready"
	TaskStateStarting   TaskState = "starting"
	TaskStateRunning    TaskState = "running"
	TaskStateComplete   TaskState = "complete"
	TaskStateFailed     TaskState = "failed"
	TaskStateRejected   TaskState = "rejected"
	TaskStateShutdown   TaskState = "shutdown"
	TaskStateRemove     TaskState = "remove"
	TaskStateOrphaned   TaskState = "orphaned"
)

// IsIgnored reports whether the state belongs to the Ignored group —
// a task that hasn't been scheduled yet and carries no placement
// information.
func (s TaskState) IsIgnored() bool {
	switch s {
	case TaskStateNew, TaskStateAllocated, TaskStatePending:
		return true
	}
	return false
}

// IsWaiting reports whether the state belongs to the Waiting group —
// a task that is on its way up but not yet observable as running.
func (s TaskState) IsWaiting() bool {
	switch s {
	case TaskStateAssigned, TaskStateAccepted, TaskStatePreparing, TaskStateReady, TaskStateStarting:
		return true
	}
	return false
}

// IsSuccess reports whether the state belongs to the Success group.
func (s TaskState) IsSuccess() bool {
	return s == TaskStateRunning || s == TaskStateComplete
}

// IsFailure reports whether the state belongs to the Failure group.
func (s TaskState) IsFailure() bool {
	switch s {
	case TaskStateFailed, TaskStateRejected, TaskStateRemove, TaskStateOrphaned:
		return true
	}
	return false
}

// IsTerminal reports whether the state belongs to Success ∪ Failure ∪ {shutdown}.
func (s TaskState) IsTerminal() bool {
	return s.IsSuccess() || s.IsFailure() || s == TaskStateShutdown
}

// Task is a single runtime instance of a service, as observed through
// ListTasks. Only the fields the reconciliation loops read are kept —
// this is a projection of swarm.Task, not a full mirror of it.
type Task struct {
	ID           string
	ServiceID    string
	NodeID       string
	State        TaskState
	DesiredState TaskState
	Timestamp    time.Time
	Message      string
}

// NodeInfo is a projection of a Swarm node: identity, the labels this
// daemon reads and writes, and the capacity it reports.
type NodeInfo struct {
	ID          string
	Hostname    string
	Labels      map[string]string
	MemoryBytes uint64
}

// ServiceSpec is the subset of a Swarm service's spec the adapter
// exposes to callers that need to know about it without mutating it.
type ServiceSpec struct {
	ID        string
	Name      string
	Labels    map[string]string
	Placement []string // placement constraint strings, if any
}
