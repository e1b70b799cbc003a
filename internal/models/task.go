package models

// TaskStatus represents where a task sits on the board.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// TaskStatuses lists every status in board column order.
var TaskStatuses = []TaskStatus{
	TaskStatusTodo,
	TaskStatusInProgress,
	TaskStatusCompleted,
	TaskStatusFailed,
}

// MergeStatus tracks the worktree branch after a task finishes.
type MergeStatus string

const (
	MergeStatusWaiting  MergeStatus = "waiting"
	MergeStatusMerged   MergeStatus = "merged"
	MergeStatusConflict MergeStatus = "conflict"
)

// Task is one record of the tasks file. Optional fields are pointers so they
// encode as null rather than disappearing.
type Task struct {
	ID           int          `json:"id"`
	Repo         string       `json:"repo"`
	RepoPath     string       `json:"repo_path"`
	SpecFile     string       `json:"spec_file"`
	LogFile      string       `json:"log_file"`
	Title        string       `json:"title"`
	Status       TaskStatus   `json:"status"`
	Branch       *string      `json:"branch"`
	AgentID      *string      `json:"agent_id"`
	WorktreePath *string      `json:"worktree_path"`
	MergeStatus  *MergeStatus `json:"merge_status"`
	CreatedAt    string       `json:"created_at"`
	AssignedAt   *string      `json:"assigned_at"`
	CompletedAt  *string      `json:"completed_at"`
	Error        *string      `json:"error"`
}

// TasksConfig holds scheduler settings written alongside the tasks.
type TasksConfig struct {
	MaxParallelTasks int `json:"max_parallel_tasks"`
}

// TasksFile is the whole task registry as written by the external scheduler.
type TasksFile struct {
	Config TasksConfig `json:"config"`
	NextID int         `json:"next_id"`
	Tasks  []Task      `json:"tasks"`
}

// EmptyTasksFile is served while the registry has not been created yet.
func EmptyTasksFile() *TasksFile {
	return &TasksFile{NextID: 1, Tasks: []Task{}}
}

// Find returns the task with the given id, or nil.
func (f *TasksFile) Find(id int) *Task {
	for i := range f.Tasks {
		if f.Tasks[i].ID == id {
			return &f.Tasks[i]
		}
	}
	return nil
}
