package job

import (
	"maps"
	"slices"
	"time"

	"github.com/xraph/vectorflow/id"
)

// Kind identifies what a job does.
type Kind string

const (
	// KindCreation embeds text and stores a single vector.
	KindCreation Kind = "creation"
	// KindDeletion removes vectors by ID.
	KindDeletion Kind = "deletion"
	// KindBulk fans out one child job per item.
	KindBulk Kind = "bulk"
	// KindFileProcessing chunks a document and stores one vector per chunk.
	KindFileProcessing Kind = "file-processing"
	// KindSync ingests content from an external document source.
	KindSync Kind = "sync"
)

// Kinds lists every job kind.
var Kinds = []Kind{KindCreation, KindDeletion, KindBulk, KindFileProcessing, KindSync}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return slices.Contains(Kinds, k) }

// Prefix returns the identifier prefix for jobs of this kind.
func (k Kind) Prefix() id.Prefix {
	switch k {
	case KindCreation:
		return id.PrefixCreation
	case KindDeletion:
		return id.PrefixDeletion
	case KindBulk:
		return id.PrefixBulk
	case KindFileProcessing:
		return id.PrefixFile
	case KindSync:
		return id.PrefixSync
	}
	return "job"
}

// Status represents the lifecycle state of a job.
type Status string

const (
	// StatusPending means the job is registered but not yet dispatched.
	StatusPending Status = "pending"
	// StatusProcessing means the job's workflow has been dispatched.
	StatusProcessing Status = "processing"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed terminally.
	StatusFailed Status = "failed"
)

// IsTerminal reports whether s is completed or failed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether a record in state from may move to to.
// Terminal states have no outgoing edges; a non-terminal state may be
// re-asserted to patch progress or metadata.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusPending || to == StatusProcessing || to == StatusFailed
	case StatusProcessing:
		return to == StatusProcessing || to == StatusCompleted || to == StatusFailed
	}
	return false
}

// Progress reports how far a job's workflow has advanced.
type Progress struct {
	CurrentStep    string `json:"currentStep"`
	TotalSteps     int    `json:"totalSteps"`
	CompletedSteps int    `json:"completedSteps"`
}

// Metadata is the result metadata of a job. The typed fields cover every
// kind; Extra carries anything else. It is stored as one JSON blob.
type Metadata struct {
	VectorID   string   `json:"vectorId,omitempty"`
	VectorIDs  []string `json:"vectorIds,omitempty"`
	Dimensions int      `json:"dimensions,omitempty"`
	Count      int      `json:"count,omitempty"`
	TotalItems int      `json:"totalItems,omitempty"`
	Dropped    int      `json:"dropped,omitempty"`
	ParentID   string   `json:"parentId,omitempty"`
	ChildIDs   []string `json:"childIds,omitempty"`
	// ChildIndexes holds the item position of each entry in ChildIDs.
	ChildIndexes []int          `json:"childIndexes,omitempty"`
	SubJobIDs    []string       `json:"subJobIds,omitempty"`
	RunID        string         `json:"runId,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Metadata) Clone() *Metadata {
	if m == nil {
		return nil
	}
	cp := *m
	cp.VectorIDs = slices.Clone(m.VectorIDs)
	cp.ChildIDs = slices.Clone(m.ChildIDs)
	cp.ChildIndexes = slices.Clone(m.ChildIndexes)
	cp.SubJobIDs = slices.Clone(m.SubJobIDs)
	cp.Extra = maps.Clone(m.Extra)
	return &cp
}

// Merge returns a copy of m with every non-zero field of patch applied.
// Extra keys are merged, with patch winning on conflict.
func (m *Metadata) Merge(patch *Metadata) *Metadata {
	out := m.Clone()
	if out == nil {
		out = &Metadata{}
	}
	if patch == nil {
		return out
	}
	if patch.VectorID != "" {
		out.VectorID = patch.VectorID
	}
	if patch.VectorIDs != nil {
		out.VectorIDs = slices.Clone(patch.VectorIDs)
	}
	if patch.Dimensions != 0 {
		out.Dimensions = patch.Dimensions
	}
	if patch.Count != 0 {
		out.Count = patch.Count
	}
	if patch.TotalItems != 0 {
		out.TotalItems = patch.TotalItems
	}
	if patch.Dropped != 0 {
		out.Dropped = patch.Dropped
	}
	if patch.ParentID != "" {
		out.ParentID = patch.ParentID
	}
	if patch.ChildIDs != nil {
		out.ChildIDs = slices.Clone(patch.ChildIDs)
	}
	if patch.ChildIndexes != nil {
		out.ChildIndexes = slices.Clone(patch.ChildIndexes)
	}
	if patch.SubJobIDs != nil {
		out.SubJobIDs = slices.Clone(patch.SubJobIDs)
	}
	if patch.RunID != "" {
		out.RunID = patch.RunID
	}
	if len(patch.Extra) > 0 {
		if out.Extra == nil {
			out.Extra = make(map[string]any, len(patch.Extra))
		}
		maps.Copy(out.Extra, patch.Extra)
	}
	return out
}

// Record is the registry entry for one job.
//
// CompletedAt is set iff Status is terminal, and Error is set iff Status
// is failed. Manager maintains both.
type Record struct {
	ID          string     `json:"id"`
	Namespace   string     `json:"namespace"`
	Kind        Kind       `json:"kind"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Error       string     `json:"error,omitempty"`
	Progress    *Progress  `json:"progress,omitempty"`
	Metadata    *Metadata  `json:"resultMetadata,omitempty"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	cp := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		cp.CompletedAt = &t
	}
	if r.Progress != nil {
		p := *r.Progress
		cp.Progress = &p
	}
	cp.Metadata = r.Metadata.Clone()
	return &cp
}
