package model

import "time"

// Exception is one persisted operational error. The loop keeps running
// through most failures; this table is the post-mortem trail of what it ran
// through.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "signal_copier"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "executors"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "runCycle"

	// Error information
	Message string `gorm:"type:text" json:"message"`

	// Severity level
	Level string `gorm:"size:20;index" json:"level"` // warn | error

	// Audit info
	CreatedAt time.Time `json:"created_at"`
}
