package deploy

// DeployRequest is the FSM input
type DeployRequest struct {
	// Host names the target node and scopes the destination file.
	Host string

	// ImageURL is the image source (http://, https:// or s3://).
	ImageURL string

	// Checksum is a resolved algo:hexdigest value; empty disables
	// verification.
	Checksum string

	// MemoryRequirementMB is the free-memory threshold for the image.
	MemoryRequirementMB int64

	// AvailableMemoryMB is the free-memory fact for the node, supplied by
	// the orchestrator or collected locally.
	AvailableMemoryMB int64
}

// DeployResponse is the FSM output (accumulated across transitions)
type DeployResponse struct {
	// From CheckRecord
	DeploymentID int64

	// From Fetch
	ImagePath string
	SHA256    string
	SizeBytes int64

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckRecord = "check_record"
	StatePreflight   = "preflight"
	StateFetch       = "fetch"
	StateVerify      = "verify"
	StateComplete    = "complete"
	StateFailed      = "failed"
)
