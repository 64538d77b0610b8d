package archive

import "time"

// Report kinds.
const (
	KindRun         = "run"
	KindAttribution = "attribution"
)

// ManifestEntry is one JSONL line in the monthly manifest.
type ManifestEntry struct {
	Kind       string `json:"kind"`
	RunID      string `json:"run_id"`
	S3Key      string `json:"s3_key"`
	ArchivedAt string `json:"archived_at"`
}

// ReportRecord wraps a run summary archived to S3.
type ReportRecord struct {
	Version    string    `json:"version"`
	Kind       string    `json:"kind"`
	RunID      string    `json:"run_id"`
	ArchivedAt time.Time `json:"archived_at"`
	Summary    any       `json:"summary"`
}
