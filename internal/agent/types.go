package agent

import (
	"time"

	"adorable/internal/client"
	"adorable/internal/files"
	"adorable/internal/tools"
)

// Mode selects the prompt and tool set of a run.
type Mode string

const (
	// ModeGenerate creates a project from a prompt.
	// Tools: emit_files, say
	ModeGenerate Mode = "generate"

	// ModeEdit changes an existing project following a user message.
	// Tools: apply_changes, say
	ModeEdit Mode = "edit"

	// ModeFix repairs a project whose build failed. The build log is the
	// instruction.
	// Tools: apply_changes, say
	ModeFix Mode = "fix"
)

// Registry returns the tools offered in this mode.
func (m Mode) Registry() *tools.Registry {
	if m == ModeGenerate {
		return tools.NewGenerationRegistry()
	}
	return tools.NewEditRegistry()
}

func (m Mode) String() string {
	return string(m)
}

// AgentStatus represents the current status of an agent.
type AgentStatus string

const (
	AgentStatusPending   AgentStatus = "pending"
	AgentStatusRunning   AgentStatus = "running"
	AgentStatusCompleted AgentStatus = "completed"
	AgentStatusFailed    AgentStatus = "failed"
	AgentStatusCancelled AgentStatus = "cancelled"
)

// AgentTask is the input of one run.
type AgentTask struct {
	Mode Mode

	// Instruction is the user's request, or the build log in fix mode.
	Instruction string

	// Base is the file set the run starts from: the template when
	// generating, the current version otherwise.
	Base files.FileSet

	// History holds prior conversation turns, oldest first.
	History []client.Message
}

// AgentResult contains the result of an agent's execution.
type AgentResult struct {
	AgentID string      `json:"agent_id"`
	Mode    Mode        `json:"mode"`
	Status  AgentStatus `json:"status"`

	// Output is the assistant text and say messages, in order.
	Output string `json:"output"`

	// Files are the entries emitted by emit_files, in order.
	Files []files.FileEntry `json:"files,omitempty"`

	// Changes are the accepted changes of the run, in order. Generated
	// entries appear as creates.
	Changes []files.FileChange `json:"changes,omitempty"`

	// Draft is Base with Changes applied.
	Draft files.FileSet `json:"-"`

	Warnings []files.Warning `json:"warnings,omitempty"`
	Turns    int             `json:"turns"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// IsSuccess returns true if the agent completed successfully.
func (r *AgentResult) IsSuccess() bool {
	return r.Status == AgentStatusCompleted && r.Error == ""
}
