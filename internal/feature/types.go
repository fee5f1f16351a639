// Package feature implements the Feature Store: durable per-feature
// records on the filesystem under a project's .automaker/ directory, and
// the plan-spec sub-record.
package feature

import "encoding/json"

// Status is the finite set of states a Feature moves through. The
// scheduler will not re-enter a terminal status on its own.
type Status string

const (
	StatusBacklog         Status = "backlog"
	StatusInProgress      Status = "in_progress"
	StatusWaitingApproval Status = "waiting_approval"
	StatusVerified        Status = "verified"
	StatusArchived        Status = "archived"
)

// IsTerminal reports whether the scheduler should leave this status alone.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusWaitingApproval, StatusVerified, StatusArchived:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusBacklog, StatusInProgress, StatusWaitingApproval, StatusVerified, StatusArchived:
		return true
	default:
		return false
	}
}

// Priority levels: 1 is high, 3 is low. A nil *Priority on a Feature sorts
// as priority 2 (medium) per the selection policy.
const (
	Priority1 = 1
	Priority2 = 2
	Priority3 = 3
)

// ThinkingLevel and ReasoningEffort are free-form enums validated loosely;
// unknown values are passed through to the agent provider unchanged.
type ThinkingLevel string

const (
	ThinkingNone       ThinkingLevel = "none"
	ThinkingLow        ThinkingLevel = "low"
	ThinkingMedium     ThinkingLevel = "medium"
	ThinkingHigh       ThinkingLevel = "high"
	ThinkingUltrathink ThinkingLevel = "ultrathink"
)

type ReasoningEffort string

const (
	ReasoningNone    ReasoningEffort = "none"
	ReasoningMinimal ReasoningEffort = "minimal"
	ReasoningLow     ReasoningEffort = "low"
	ReasoningMedium  ReasoningEffort = "medium"
	ReasoningHigh    ReasoningEffort = "high"
	ReasoningXHigh   ReasoningEffort = "xhigh"
)

// PlanStatus is the tagged status of a Feature's plan-spec sub-record.
type PlanStatus string

const (
	PlanDraft     PlanStatus = "draft"
	PlanGenerated PlanStatus = "generated"
	PlanApproved  PlanStatus = "approved"
)

// TaskStatus is the status of one plan task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// PlanTask is one unit of a generated plan.
type PlanTask struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
}

// PlanSpec is the optional plan sub-record on a Feature. The Orchestrator
// pauses a run when Status is PlanGenerated to await approval.
type PlanSpec struct {
	Status         PlanStatus `json:"status"`
	Content        string     `json:"content,omitempty"`
	Tasks          []PlanTask `json:"tasks,omitempty"`
	TasksCompleted int        `json:"tasksCompleted,omitempty"`
	CurrentTaskID  string     `json:"currentTaskId,omitempty"`
}

// ImageRef is one attached image path, optionally carrying metadata. It
// round-trips as a bare JSON string when Meta is empty, and as an object
// otherwise, matching the `string | {path, ...meta}` union in the on-disk
// schema.
type ImageRef struct {
	Path string
	Meta map[string]any
}

func (r ImageRef) MarshalJSON() ([]byte, error) {
	if len(r.Meta) == 0 {
		return json.Marshal(r.Path)
	}
	obj := make(map[string]any, len(r.Meta)+1)
	for k, v := range r.Meta {
		obj[k] = v
	}
	obj["path"] = r.Path
	return json.Marshal(obj)
}

func (r *ImageRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		r.Path = s
		r.Meta = nil
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if p, ok := obj["path"].(string); ok {
		r.Path = p
		delete(obj, "path")
	}
	if len(obj) > 0 {
		r.Meta = obj
	}
	return nil
}

// Feature is the unit of work on the board.
type Feature struct {
	ID           string     `json:"id"`
	Description  string     `json:"description"`
	Category     string     `json:"category,omitempty"`
	Priority     *int       `json:"priority,omitempty"`
	Dependencies []string   `json:"dependencies,omitempty"`
	Status       Status     `json:"status"`
	SkipTests    bool       `json:"skipTests,omitempty"`

	Model           string          `json:"model,omitempty"`
	ThinkingLevel   ThinkingLevel   `json:"thinkingLevel,omitempty"`
	ReasoningEffort ReasoningEffort `json:"reasoningEffort,omitempty"`

	StartedAt      *string `json:"startedAt,omitempty"`
	JustFinishedAt *string `json:"justFinishedAt,omitempty"`

	Summary *string `json:"summary,omitempty"`
	Error   *string `json:"error,omitempty"`

	WorktreePath *string `json:"worktreePath,omitempty"`
	BranchName   *string `json:"branchName,omitempty"`
	BaseBranch   *string `json:"baseBranch,omitempty"`

	ImagePaths []ImageRef `json:"imagePaths,omitempty"`

	PlanSpec *PlanSpec `json:"planSpec,omitempty"`

	// CreatedAt is the creation timestamp Store.Create records, in UTC with
	// a fixed nanosecond width so that comparing the strings orders
	// features by creation time; List and SelectCandidates sort on it. It
	// is not part of the spec's canonical schema excerpt but every feature
	// needs a stable creation timestamp to satisfy "Features order by
	// embedded creation timestamp, ascending" (spec.md §3).
	CreatedAt string `json:"createdAt,omitempty"`
}

// PriorityOrDefault returns the feature's priority, defaulting unset to 2.
func (f *Feature) PriorityOrDefault() int {
	if f.Priority == nil {
		return Priority2
	}
	return *f.Priority
}

// DependenciesSatisfied reports whether every dependency id in by resolves
// to a terminal status of verified or archived.
func (f *Feature) DependenciesSatisfied(by map[string]Status) bool {
	for _, dep := range f.Dependencies {
		st, ok := by[dep]
		if !ok {
			return false
		}
		if st != StatusVerified && st != StatusArchived {
			return false
		}
	}
	return true
}

// Draft is the input to Store.Create: everything callers may set up
// front. ID, Status, and CreatedAt are assigned by the store if absent.
type Draft struct {
	ID           string
	Description  string
	Category     string
	Priority     *int
	Dependencies []string
	SkipTests    bool
	Model        string
	ThinkingLevel   ThinkingLevel
	ReasoningEffort ReasoningEffort
	ImagePaths   []ImageRef
}

// Partial is a sparse set of field updates for Store.Update. A nil pointer
// field means "leave unchanged"; Store.Update never infers clearing from
// zero values, only from explicit non-nil pointers to the zero value.
type Partial struct {
	Description     *string
	Category        *string
	Priority        **int
	Dependencies    *[]string
	Status          *Status
	SkipTests       *bool
	Model           *string
	ThinkingLevel   *ThinkingLevel
	ReasoningEffort *ReasoningEffort
	StartedAt       **string
	JustFinishedAt  **string
	Summary         **string
	Error           **string
	WorktreePath    **string
	BranchName      **string
	BaseBranch      **string
	ImagePaths      *[]ImageRef
	PlanSpec        **PlanSpec
}
