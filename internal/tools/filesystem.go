package tools

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/MEKXH/warden/internal/executor"
)

// ReadFileInput parameters for read_file tool
type ReadFileInput struct {
	Path   string `json:"path" jsonschema:"required,description=Path to the file"`
	Offset int    `json:"offset" jsonschema:"description=Starting line number (0-based)"`
	Limit  int    `json:"limit" jsonschema:"description=Maximum number of lines to read"`
}

// ReadFileOutput result of read_file tool
type ReadFileOutput struct {
	Content    string `json:"content"`
	TotalLines int    `json:"total_lines"`
}

type readFileToolImpl struct {
	files *executor.Files
}

func (t *readFileToolImpl) execute(ctx context.Context, input *ReadFileInput) (*ReadFileOutput, error) {
	data, err := t.files.Read(ctx, input.Path)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	if input.Offset > 0 {
		if input.Offset >= len(lines) {
			lines = []string{}
		} else {
			lines = lines[input.Offset:]
		}
	}
	if input.Limit > 0 && input.Limit < len(lines) {
		lines = lines[:input.Limit]
	}

	return &ReadFileOutput{
		Content:    strings.Join(lines, "\n"),
		TotalLines: totalLines,
	}, nil
}

// NewReadFileTool creates the read_file tool
func NewReadFileTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &readFileToolImpl{files: files}
	return utils.InferTool("read_file", "Read the contents of a file permitted by the security policy", impl.execute)
}

// WriteFileInput parameters for write_file tool
type WriteFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file"`
	Content string `json:"content" jsonschema:"required,description=Content to write"`
}

// WriteFileOutput result of write_file tool
type WriteFileOutput struct {
	Path  string `json:"path"`
	Bytes int    `json:"bytes"`
}

type writeFileToolImpl struct {
	files *executor.Files
}

func (t *writeFileToolImpl) execute(ctx context.Context, input *WriteFileInput) (*WriteFileOutput, error) {
	if err := t.files.Write(ctx, input.Path, []byte(input.Content)); err != nil {
		return nil, err
	}
	return &WriteFileOutput{Path: input.Path, Bytes: len(input.Content)}, nil
}

// NewWriteFileTool creates the write_file tool
func NewWriteFileTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &writeFileToolImpl{files: files}
	return utils.InferTool("write_file", "Write content to a file permitted by the security policy, creating parent directories", impl.execute)
}

// PathInput is shared by the tools that take only a path.
type PathInput struct {
	Path string `json:"path" jsonschema:"required,description=Path to inspect"`
}

type listDirToolImpl struct {
	files *executor.Files
}

func (t *listDirToolImpl) execute(ctx context.Context, input *PathInput) ([]string, error) {
	return t.files.List(ctx, input.Path)
}

// NewListDirTool creates the list_dir tool
func NewListDirTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &listDirToolImpl{files: files}
	return utils.InferTool("list_dir", "List entry names of a directory, unsorted", impl.execute)
}

// FileExistsOutput result of file_exists tool
type FileExistsOutput struct {
	Exists bool `json:"exists"`
}

type fileExistsToolImpl struct {
	files *executor.Files
}

func (t *fileExistsToolImpl) execute(ctx context.Context, input *PathInput) (*FileExistsOutput, error) {
	ok, err := t.files.Exists(ctx, input.Path)
	if err != nil {
		return nil, err
	}
	return &FileExistsOutput{Exists: ok}, nil
}

// NewFileExistsTool creates the file_exists tool
func NewFileExistsTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &fileExistsToolImpl{files: files}
	return utils.InferTool("file_exists", "Check whether a file or directory exists", impl.execute)
}

type fileInfoToolImpl struct {
	files *executor.Files
}

func (t *fileInfoToolImpl) execute(ctx context.Context, input *PathInput) (*executor.FileInfo, error) {
	info, err := t.files.Stat(ctx, input.Path)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// NewFileInfoTool creates the file_info tool
func NewFileInfoTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &fileInfoToolImpl{files: files}
	return utils.InferTool("file_info", "Report size, type and read-only flag of a path", impl.execute)
}
