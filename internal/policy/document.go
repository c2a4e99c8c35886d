package policy

// Document is the on-disk policy schema. It mirrors the security.yaml layout
// used by earlier deployments, so existing documents load unchanged.
//
// Required booleans and sections are pointers so a missing key is told apart
// from an explicit zero value.
type Document struct {
	FileOperations *FileOperations `yaml:"file_operations" toml:"file_operations" json:"file_operations" validate:"required"`
	SystemCommands *SystemCommands `yaml:"system_commands" toml:"system_commands" json:"system_commands" validate:"required"`
	Environment    *Environment    `yaml:"environment" toml:"environment" json:"environment"`
}

// FileOperations constrains file access.
type FileOperations struct {
	AllowedExtensions  *AllowedExtensions `yaml:"allowed_extensions" toml:"allowed_extensions" json:"allowed_extensions" validate:"required"`
	BlockedPaths       []string           `yaml:"blocked_paths" toml:"blocked_paths" json:"blocked_paths" validate:"required,dive,required"`
	AllowedDirectories []string           `yaml:"allowed_directories" toml:"allowed_directories" json:"allowed_directories" validate:"required,dive,required"`
	MaxFileSizeMB      uint64             `yaml:"max_file_size_mb" toml:"max_file_size_mb" json:"max_file_size_mb" validate:"required_without=MaxFileSizeBytes"`
	MaxFileSizeBytes   uint64             `yaml:"max_file_size_bytes" toml:"max_file_size_bytes" json:"max_file_size_bytes" validate:"required_without=MaxFileSizeMB"`
	AtomicWrites       bool               `yaml:"atomic_writes" toml:"atomic_writes" json:"atomic_writes"`
}

// AllowedExtensions lists extensions per operation, e.g. ".txt".
type AllowedExtensions struct {
	Read  []string `yaml:"read" toml:"read" json:"read" validate:"required,dive,required"`
	Write []string `yaml:"write" toml:"write" json:"write" validate:"required,dive,required"`
}

// SystemCommands constrains host command execution.
type SystemCommands struct {
	Enabled         *bool    `yaml:"enabled" toml:"enabled" json:"enabled" validate:"required"`
	Allowlist       []string `yaml:"allowlist" toml:"allowlist" json:"allowlist" validate:"required,dive,required"`
	BlockedPatterns []string `yaml:"blocked_patterns" toml:"blocked_patterns" json:"blocked_patterns" validate:"required,dive,required"`
	TimeoutSeconds  uint64   `yaml:"timeout_seconds" toml:"timeout_seconds" json:"timeout_seconds" validate:"required_without=Timeout"`
	// Timeout is a Go duration string ("1m30s"); it wins over TimeoutSeconds.
	Timeout string `yaml:"timeout" toml:"timeout" json:"timeout" validate:"required_without=TimeoutSeconds"`
}

// Environment holds process-level execution limits.
type Environment struct {
	SandboxUser        string `yaml:"sandbox_user" toml:"sandbox_user" json:"sandbox_user"`
	MaxExecutionTimeMS uint64 `yaml:"max_execution_time_ms" toml:"max_execution_time_ms" json:"max_execution_time_ms"`
	MaxOutputBytes     uint64 `yaml:"max_output_bytes" toml:"max_output_bytes" json:"max_output_bytes"`
}
