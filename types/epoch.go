package types

import "time"

// EpochStatus is the lifecycle state of an epoch
type EpochStatus string

const (
	EpochStatusActive    EpochStatus = "active"
	EpochStatusCompleted EpochStatus = "completed"
	EpochStatusArchived  EpochStatus = "archived"
)

// Valid reports whether s is one of the known statuses
func (s EpochStatus) Valid() bool {
	switch s {
	case EpochStatusActive, EpochStatusCompleted, EpochStatusArchived:
		return true
	}
	return false
}

// Epoch is a named, timestamped grouping of executions (e.g. a monthly
// snapshot) used for time-series comparison. Names are unique.
type Epoch struct {
	ID             string                 `json:"id" validate:"notblank"`
	Name           string                 `json:"name" validate:"notblank"`
	Description    string                 `json:"description,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	CreatedAt      time.Time              `json:"created_at"`
	Status         EpochStatus            `json:"status" validate:"oneof=active completed archived"`
	Tags           []string               `json:"tags,omitempty"`
	ParentEpochID  *string                `json:"parent_epoch_id,omitempty"`
	ExecutionCount int                    `json:"execution_count"`
	ExecutionIDs   []string               `json:"execution_ids,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// HasTag reports whether the epoch carries tag
func (e *Epoch) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
