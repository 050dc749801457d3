package storage

// Conversation is a workspace-scoped container of messages.
type Conversation struct {
	ID          string
	WorkspaceID string
	Title       string
	Active      bool
	CreatedAt   string // ISO-8601
	UpdatedAt   string // ISO-8601
}

// Role enumerates the two message roles.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of a conversation. Content is preserved verbatim;
// blocks are a projection of it produced by MIP.
type Message struct {
	ID             string
	ConversationID string
	Role           Role
	Content        string
	Metadata       string // JSON object, normalized to "{}" when empty
	Timestamp      int64  // epoch milliseconds
}

// BlockType enumerates the block type tag. The CHECK constraint on the
// blocks table (see sqlite.go migration v5) must stay in sync with this set.
type BlockType string

const (
	BlockText        BlockType = "text"
	BlockCode        BlockType = "code"
	BlockCommand     BlockType = "command"
	BlockFile        BlockType = "file"
	BlockDiff        BlockType = "diff"
	BlockError       BlockType = "error"
	BlockResult      BlockType = "result"
	BlockDiagram     BlockType = "diagram"
	BlockLink        BlockType = "link"
	BlockQuote       BlockType = "quote"
	BlockList        BlockType = "list"
	BlockTable       BlockType = "table"
	BlockTool        BlockType = "tool"
	BlockChecklist   BlockType = "checklist"
	BlockFileSummary BlockType = "file-summary"
)

// FileSummaryOrder is the fixed order value the file-summary block is given
// so it always sorts last within a message.
const FileSummaryOrder = 9999

// Block is a typed, ordered unit of a message's body.
type Block struct {
	ID        string
	MessageID string
	Type      BlockType
	Content   string
	Metadata  string // JSON object
	Order     int
	CreatedAt string // ISO-8601
}

// BlockBookmark annotates a block with an optional title/note and tags.
type BlockBookmark struct {
	ID        string
	BlockID   string
	Title     string
	Note      string
	Tags      []string
	CreatedAt string // ISO-8601
}

// BlockExecution is an append-only record of one execution of a block
// (e.g. running a command block), with output truncated to a fixed cap.
type BlockExecution struct {
	ID         string
	BlockID    string
	ExecutedAt string // ISO-8601
	ExitCode   int
	Output     string
	DurationMs int64
}

// MaxExecutionOutputBytes caps BlockExecution.Output.
const MaxExecutionOutputBytes = 64 * 1024

// TodoStatus enumerates Todo.Status.
type TodoStatus string

const (
	TodoPending    TodoStatus = "pending"
	TodoInProgress TodoStatus = "in_progress"
	TodoCompleted  TodoStatus = "completed"
	TodoFailed     TodoStatus = "failed"
	TodoSkipped    TodoStatus = "skipped"
)

// TodoPriority enumerates Todo.Priority.
type TodoPriority string

const (
	PriorityLow      TodoPriority = "low"
	PriorityMedium   TodoPriority = "medium"
	PriorityHigh     TodoPriority = "high"
	PriorityCritical TodoPriority = "critical"
)

// TodoComplexity enumerates Todo.Complexity.
type TodoComplexity string

const (
	ComplexityTrivial     TodoComplexity = "trivial"
	ComplexitySimple      TodoComplexity = "simple"
	ComplexityMedium      TodoComplexity = "medium"
	ComplexityComplex     TodoComplexity = "complex"
	ComplexityVeryComplex TodoComplexity = "very_complex"
)

// Todo is one node in a conversation's todo forest.
type Todo struct {
	ID                       string
	ConversationID           string
	MessageID                string
	ParentID                 *string
	Order                    int
	Depth                    int
	Content                  string
	ActiveForm               string
	Status                   TodoStatus
	Progress                 *int
	Priority                 TodoPriority
	Complexity               TodoComplexity
	ThinkingStepIDs          []string
	BlockIDs                 []string
	EstimatedDurationSeconds *int
	ActualDurationSeconds    *int
	StartedAt                *int64
	CompletedAt              *int64
	CreatedAt                int64
	UpdatedAt                int64
}

// PlanStatus enumerates Plan.Status.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanActive    PlanStatus = "active"
	PlanCompleted PlanStatus = "completed"
	PlanCancelled PlanStatus = "cancelled"
)

// PlanTodo is the flat, embedded todo shape a Plan carries until
// plan:execute materializes it into Todo rows.
type PlanTodo struct {
	Content     string `json:"content"`
	ActiveForm  string `json:"activeForm"`
	Priority    string `json:"priority"`
	Complexity  string `json:"complexity"`
	ParentIndex *int   `json:"parentIndex,omitempty"`
}

// Plan is a goal plus a flat, ordered todo list, persisted as JSON until
// execution materializes rows.
type Plan struct {
	ID                       string
	WorkspaceID              string
	Goal                     string
	PlanDocument             string
	Todos                    []PlanTodo
	TodoCount                int
	EstimatedDurationSeconds int
	Status                   PlanStatus
	AIAnalysis               string // JSON object
	CreatedAt                int64
	UpdatedAt                int64
}

// WorkspaceMetadata tracks per-workspace state outside any one conversation.
type WorkspaceMetadata struct {
	WorkspaceID              string
	LastActiveConversationID *string
	Settings                 string // JSON object
}

// MemoryType enumerates ProjectMemory.Type.
type MemoryType string

const (
	MemoryConvention MemoryType = "convention"
	MemoryDecision   MemoryType = "decision"
	MemorySnippet    MemoryType = "snippet"
	MemoryRule       MemoryType = "rule"
	MemoryNote       MemoryType = "note"
)

// MemoryPriority enumerates ProjectMemory.Priority.
type MemoryPriority string

const (
	MemoryPriorityHigh   MemoryPriority = "high"
	MemoryPriorityMedium MemoryPriority = "medium"
	MemoryPriorityLow    MemoryPriority = "low"
)

// ProjectMemory is a per-project fact the AI CLI should carry between
// sessions: a convention, a past decision, a reusable snippet, a rule, or a
// free-form note.
type ProjectMemory struct {
	ID          string
	ProjectPath string
	Type        MemoryType
	Key         string
	Value       string
	Priority    MemoryPriority
	UsageCount  int
	CreatedAt   int64
	UpdatedAt   int64
}

// MCPCallStatus enumerates MCPCall.Status.
type MCPCallStatus string

const (
	MCPCallPending MCPCallStatus = "pending"
	MCPCallSuccess MCPCallStatus = "success"
	MCPCallError   MCPCallStatus = "error"
	MCPCallTimeout MCPCallStatus = "timeout"
)

// MCPCall is one tool-call record written by TSP: once in pending state,
// then transitioned to a terminal state by a second update. Never deleted.
type MCPCall struct {
	ID             int64
	CallID         string
	Timestamp      int64
	DurationMs     *int64
	ServerID       string
	ServerName     string
	Method         string
	ToolName       string
	RequestParams  string // JSON
	ResponseResult *string
	ResponseError  *string
	Status         MCPCallStatus
}
