package snapshotstore

import "time"

// Snapshot is a single indexed conformance snapshot in the database.
type Snapshot struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Ref     string `gorm:"not null;uniqueIndex:idx_snapshots_ref_commit" json:"ref"`
	Commit  string `gorm:"not null;uniqueIndex:idx_snapshots_ref_commit" json:"commit"`
	Total   int    `json:"total"`
	Passed  int    `json:"passed"`
	Ignored int    `json:"ignored"`

	// HasResults reports whether the full suite tree was archived for
	// this commit.
	HasResults bool `json:"has_results"`

	FetchedAt time.Time `gorm:"index" json:"fetched_at"`
}

// Failed derives the failed-test count.
func (s *Snapshot) Failed() int {
	return s.Total - s.Passed - s.Ignored
}

// Release is a recorded repository release tag.
type Release struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TagName     string    `gorm:"uniqueIndex;not null" json:"tag_name"`
	Name        string    `json:"name"`
	HTMLURL     string    `json:"html_url"`
	Prerelease  bool      `json:"prerelease"`
	PublishedAt time.Time `json:"published_at"`
	RecordedAt  time.Time `json:"recorded_at"`
}
