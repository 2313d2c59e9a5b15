package models

import "time"

// SummaryRecord is one summary entry emitted at the end of an epoch
type SummaryRecord struct {
	RunID    string             `json:"run_id"`
	Epoch    int                `json:"epoch"`
	Step     int64              `json:"step"`
	Scalars  map[string]float64 `json:"scalars"`
	WallTime time.Time          `json:"wall_time"`
}
