package storage

// Store 持久化接口
// Store is the persistence interface for agent sessions
type Store interface {
	// Session 操作 / Session operations
	CreateSession(meta SessionMeta) error
	SaveSession(meta SessionMeta) error
	LoadSession(id string) (SessionMeta, error)
	ListSessions() ([]SessionMeta, error)

	// Todo 操作 / Todo operations
	ListTodos(sessionID string) ([]TodoItem, error)
	ReplaceTodos(sessionID string, items []TodoItem) error

	// Scratchpad 操作 / Scratchpad operations
	ListScratchpad(sessionID string) ([]PadEntry, error)
	ReplaceScratchpad(sessionID string, entries []PadEntry) error

	// 步骤索引 / Step index
	AppendStep(sessionID string, step StepRecord) error
	ListSteps(sessionID string) ([]StepRecord, error)

	// 生命周期 / Lifecycle
	Close() error
}
