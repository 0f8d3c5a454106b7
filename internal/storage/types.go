package storage

// SessionMeta 会话元数据
// SessionMeta holds session metadata
type SessionMeta struct {
	ID            string `json:"id"`
	Goal          string `json:"goal"`
	Status        string `json:"status"`
	Success       bool   `json:"success"`
	Reason        string `json:"reason"`
	PlannerModel  string `json:"planner_model"`
	ExecutorModel string `json:"executor_model"`
	TraceDir      string `json:"trace_dir"`
	PlannerSteps  int    `json:"planner_steps"`
	ExecutorSteps int    `json:"executor_steps"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}

// TodoItem 待办条目
// TodoItem is a single todo entry
type TodoItem struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Status   string `json:"status"`
	Priority string `json:"priority"`
}

// PadEntry is one scratchpad payload.
type PadEntry struct {
	Key    string `json:"key"`
	Title  string `json:"title"`
	Text   string `json:"text"`
	IsJSON bool   `json:"is_json"`
}

const (
	TierPlanner  = "planner"
	TierExecutor = "executor"
)

// StepRecord indexes one planner or executor step of a session.
type StepRecord struct {
	Tier      string   `json:"tier"`
	Number    int      `json:"number"`
	Tools     []string `json:"tools"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	Session    SessionMeta `json:"session"`
	Todos      []TodoItem  `json:"todos"`
	Scratchpad []PadEntry  `json:"scratchpad"`
}
