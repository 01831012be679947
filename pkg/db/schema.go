package db

// Schema defines the SQLite schema for node deployments. One row per host;
// the status column mirrors the deployment job's lifecycle.
const Schema = `
CREATE TABLE IF NOT EXISTS deployments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    host TEXT NOT NULL UNIQUE,
    image_url TEXT NOT NULL,
    checksum TEXT,
    image_path TEXT,
    sha256 TEXT,
    size_bytes INTEGER,
    status TEXT NOT NULL CHECK(status IN ('pending', 'running', 'succeeded', 'failed')),
    error_kind TEXT,
    error_message TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_deployments_host ON deployments(host);
CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployments(status);
CREATE INDEX IF NOT EXISTS idx_deployments_created_at ON deployments(created_at);
`

// Status constants
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Deployment represents one node's image deployment record
type Deployment struct {
	ID           int64
	Host         string
	ImageURL     string
	Checksum     string
	ImagePath    string
	SHA256       string
	SizeBytes    int64
	Status       string
	ErrorKind    string
	ErrorMessage string
	CreatedAt    string
	UpdatedAt    string
}
