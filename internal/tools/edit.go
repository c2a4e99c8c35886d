package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/MEKXH/warden/internal/executor"
)

// EditFileInput parameters for edit_file tool.
type EditFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file"`
	OldText string `json:"old_text" jsonschema:"required,description=Exact existing text to replace"`
	NewText string `json:"new_text" jsonschema:"required,description=Replacement text"`
}

type editFileToolImpl struct {
	files *executor.Files
}

// execute needs both read and write permission on the path.
func (t *editFileToolImpl) execute(ctx context.Context, input *EditFileInput) (*WriteFileOutput, error) {
	if input.OldText == "" {
		return nil, fmt.Errorf("old_text must not be empty")
	}

	data, err := t.files.Read(ctx, input.Path)
	if err != nil {
		return nil, err
	}
	content := string(data)
	occurrences := strings.Count(content, input.OldText)
	if occurrences == 0 {
		return nil, fmt.Errorf("old_text not found in file")
	}
	if occurrences > 1 {
		return nil, fmt.Errorf("old_text matches multiple locations (%d); provide a unique snippet", occurrences)
	}

	updated := strings.Replace(content, input.OldText, input.NewText, 1)
	if err := t.files.Write(ctx, input.Path, []byte(updated)); err != nil {
		return nil, err
	}
	return &WriteFileOutput{Path: input.Path, Bytes: len(updated)}, nil
}

// NewEditFileTool creates the edit_file tool.
func NewEditFileTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &editFileToolImpl{files: files}
	return utils.InferTool("edit_file", "Edit one exact snippet in a file via old_text -> new_text replacement", impl.execute)
}

// AppendFileInput parameters for append_file tool.
type AppendFileInput struct {
	Path    string `json:"path" jsonschema:"required,description=Path to the file"`
	Content string `json:"content" jsonschema:"required,description=Content to append to file end"`
}

type appendFileToolImpl struct {
	files *executor.Files
}

// execute rewrites the whole file, so the size limit applies to the result.
func (t *appendFileToolImpl) execute(ctx context.Context, input *AppendFileInput) (*WriteFileOutput, error) {
	if strings.TrimSpace(input.Content) == "" {
		return nil, fmt.Errorf("content must not be empty")
	}

	existing, err := t.files.Read(ctx, input.Path)
	if err != nil && !errors.Is(err, executor.ErrNotFound) {
		return nil, err
	}
	updated := append(existing, input.Content...)
	if err := t.files.Write(ctx, input.Path, updated); err != nil {
		return nil, err
	}
	return &WriteFileOutput{Path: input.Path, Bytes: len(updated)}, nil
}

// NewAppendFileTool creates the append_file tool.
func NewAppendFileTool(files *executor.Files) (tool.InvokableTool, error) {
	impl := &appendFileToolImpl{files: files}
	return utils.InferTool("append_file", "Append content to a file, creating it when missing", impl.execute)
}
