package rpc

import "github.com/MEKXH/warden/internal/wire"

type FileReadRequest struct {
	Path string `json:"path"`
}

type FileReadResponse struct {
	wire.Status
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

type FileWriteRequest struct {
	Path     string `json:"path"`
	Content  string `json:"content"`
	Encoding string `json:"encoding,omitempty"`
}

type FileWriteResponse struct {
	wire.Status
}

type FileListRequest struct {
	Path string `json:"path"`
}

// FileEntry carries only the name; listing does not stat entries.
type FileEntry struct {
	Name string `json:"name"`
}

type FileListResponse struct {
	wire.Status
	Entries []FileEntry `json:"entries"`
}

type FileExistsRequest struct {
	Path string `json:"path"`
}

type FileExistsResponse struct {
	wire.Status
	Exists bool `json:"exists"`
}

type FileInfoRequest struct {
	Path string `json:"path"`
}

type FileInfoResponse struct {
	wire.Status
	Size     int64 `json:"size"`
	IsDir    bool  `json:"is_dir"`
	IsFile   bool  `json:"is_file"`
	Readonly bool  `json:"readonly"`
}

type CommandRequest struct {
	Command        string   `json:"command"`
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty"`
}

// CommandResponse reports Success from the exit status when the command ran.
type CommandResponse struct {
	wire.Status
	Stdout    string `json:"stdout"`
	Stderr    string `json:"stderr"`
	ExitCode  int32  `json:"exit_code"`
	Truncated bool   `json:"truncated,omitempty"`
}

type EmptyRequest struct{}

type DirectoryResponse struct {
	wire.Status
	Path string `json:"path"`
}

type EnvVarRequest struct {
	Name string `json:"name"`
}

type EnvVarResponse struct {
	wire.Status
	Value string `json:"value"`
}
