package domain

import "time"

// FileStatus represents the terminal outcome recorded for an input artifact.
type FileStatus string

const (
	// FileStatusLoaded means the artifact was converted and its rows loaded.
	FileStatusLoaded FileStatus = "loaded"
	// FileStatusQuarantined means the artifact failed validation and was moved
	// to the quarantine location.
	FileStatusQuarantined FileStatus = "quarantined"
)

// ProcessedFile is the ledger row written once an input artifact reaches a
// terminal state. The (name, mod_time) pair is the artifact identity used to
// deduplicate re-delivered notifications across restarts.
type ProcessedFile struct {
	ID       string     `gorm:"type:text;primaryKey" json:"id"`
	Name     string     `gorm:"type:text;not null;index:idx_processed_identity,unique" json:"name"`
	ModTime  int64      `gorm:"not null;index:idx_processed_identity,unique" json:"mod_time"`
	Status   FileStatus `gorm:"type:text;not null;index" json:"status"`
	Artifact string     `gorm:"type:text" json:"artifact"` // converted artifact path, if any
	Rows     int64      `gorm:"default:0" json:"rows"`
	Reason   string     `gorm:"type:text" json:"reason"` // quarantine reason, if any

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName overrides the GORM table name.
func (ProcessedFile) TableName() string {
	return "processed_files"
}
