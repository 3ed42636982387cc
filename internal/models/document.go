// Package models defines the domain types for Dagaz.
package models

import "time"

// DocumentMetadata is a lightweight representation returned by list operations.
type DocumentMetadata struct {
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}
