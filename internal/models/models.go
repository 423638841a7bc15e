package models

import "time"

// Sample is a physical sample under test, deduplicated by name.
type Sample struct {
	ID         int64     `db:"id" json:"id"`
	SampleName string    `db:"sample_name" json:"sample_name"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Measurement is one persisted Ls-Rs result. Inductance and resistance
// keep the formatted text form produced at measurement time.
type Measurement struct {
	ID         int64     `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	SampleID   int64     `db:"sample_id" json:"sample_id"`
	TestType   string    `db:"test_type" json:"test_type"`
	Inductance string    `db:"inductance" json:"inductance"`
	Resistance string    `db:"resistance" json:"resistance"`
	Tester     string    `db:"tester" json:"tester"`
	AppVersion string    `db:"app_version" json:"app_version,omitempty"`
}

// RecentResult is a measurement joined with its sample name for display.
type RecentResult struct {
	ID         int64     `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	SampleName string    `json:"sample_name"`
	TestType   string    `json:"test_type"`
	Inductance string    `json:"inductance"`
	Resistance string    `json:"resistance"`
	Tester     string    `json:"tester"`
	AppVersion string    `json:"app_version,omitempty"`
}

// Operator is a bench user allowed to record measurements.
type Operator struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
