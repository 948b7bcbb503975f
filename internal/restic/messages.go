package restic

import "time"

// Message is one decoded JSON line. The set of implementations is closed.
type Message interface {
	MessageType() string
}

// Status reports backup progress.
type Status struct {
	SecondsElapsed   int64    `json:"seconds_elapsed"`
	SecondsRemaining int64    `json:"seconds_remaining"`
	PercentDone      float64  `json:"percent_done"`
	TotalFiles       uint64   `json:"total_files"`
	FilesDone        uint64   `json:"files_done"`
	TotalBytes       uint64   `json:"total_bytes"`
	BytesDone        uint64   `json:"bytes_done"`
	ErrorCount       uint64   `json:"error_count"`
	CurrentFiles     []string `json:"current_files"`
}

// VerboseStatus reports the outcome for a single item when --verbose is set.
type VerboseStatus struct {
	// Action is one of "new", "unchanged", "modified" or "scan_finished".
	Action             string  `json:"action"`
	Item               string  `json:"item"`
	Duration           float64 `json:"duration"`
	DataSize           uint64  `json:"data_size"`
	DataSizeInRepo     uint64  `json:"data_size_in_repo"`
	MetadataSize       uint64  `json:"metadata_size"`
	MetadataSizeInRepo uint64  `json:"metadata_size_in_repo"`
	TotalFiles         uint64  `json:"total_files"`
}

// Summary is printed once at the end of a backup.
type Summary struct {
	DryRun              bool      `json:"dry_run"`
	FilesNew            uint64    `json:"files_new"`
	FilesChanged        uint64    `json:"files_changed"`
	FilesUnmodified     uint64    `json:"files_unmodified"`
	DirsNew             uint64    `json:"dirs_new"`
	DirsChanged         uint64    `json:"dirs_changed"`
	DirsUnmodified      uint64    `json:"dirs_unmodified"`
	DataBlobs           int64     `json:"data_blobs"`
	TreeBlobs           int64     `json:"tree_blobs"`
	DataAdded           uint64    `json:"data_added"`
	DataAddedPacked     uint64    `json:"data_added_packed"`
	TotalFilesProcessed uint64    `json:"total_files_processed"`
	TotalBytesProcessed uint64    `json:"total_bytes_processed"`
	BackupStart         time.Time `json:"backup_start"`
	BackupEnd           time.Time `json:"backup_end"`
	TotalDuration       float64   `json:"total_duration"`
	SnapshotID          string    `json:"snapshot_id,omitempty"`
}

// BackupError reports a per-item failure. It does not end the backup.
type BackupError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
	During string `json:"during"`
	Item   string `json:"item"`
}

// ExitMessage is printed right before restic exits with a non-zero code.
type ExitMessage struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Version is the output of "restic version --json".
type Version struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GoOS      string `json:"go_os"`
	GoArch    string `json:"go_arch"`
}

// Initialized is the output of "restic init --json".
type Initialized struct {
	ID         string `json:"id"`
	Repository string `json:"repository"`
}

func (*Status) MessageType() string        { return "status" }
func (*VerboseStatus) MessageType() string { return "verbose_status" }
func (*Summary) MessageType() string       { return "summary" }
func (*BackupError) MessageType() string   { return "error" }
func (*ExitMessage) MessageType() string   { return "exit_error" }
func (*Version) MessageType() string       { return "version" }
func (*Initialized) MessageType() string   { return "initialized" }
