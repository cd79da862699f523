// Filesystem Tools - the manuscript I/O surface of the writing agent.
//
// Information Hiding:
// - File I/O implementation details hidden
// - Path validation and security checks hidden
// - Error handling for file operations abstracted

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// WriteFileTool writes a file, creating parent directories as needed.
// This is the agent's primary output path: chapters, outlines, and notes all
// land through it.
type WriteFileTool struct {
	BaseTool
	allowedPaths []string
	maxSizeBytes int64
}

// NewWriteFileTool creates a new write file tool.
func NewWriteFileTool(maxSizeBytes int64) *WriteFileTool {
	return &WriteFileTool{maxSizeBytes: maxSizeBytes}
}

// WithAllowedPaths sets the allowed path prefixes.
func (t *WriteFileTool) WithAllowedPaths(paths []string) *WriteFileTool {
	t.allowedPaths = paths
	return t
}

// Metadata returns the tool metadata.
func (t *WriteFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "write_file",
		Description: "Write content to a file, creating it (and any parent directories) if needed and replacing it if it exists",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Path of the file to write", Required: true},
			{Name: "content", ParamType: "string", Description: "Full content to write", Required: true},
		},
	}
}

type writeFileArgs struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Validate validates the arguments.
func (t *WriteFileTool) Validate(args json.RawMessage) error {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Execute writes the file.
func (t *WriteFileTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	if a.Path == "" {
		return FailureResultf("path cannot be empty"), nil
	}

	if !pathAllowedForWrite(a.Path, t.allowedPaths) {
		return FailureResultf("access to path '%s' is not allowed", a.Path), nil
	}

	if int64(len(a.Content)) > t.maxSizeBytes {
		return FailureResultf("content too large: %d bytes (max: %d bytes)", len(a.Content), t.maxSizeBytes), nil
	}

	if dir := filepath.Dir(a.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return FailureResult(fmt.Errorf("failed to create directory: %w", err)), nil
		}
	}

	if err := os.WriteFile(a.Path, []byte(a.Content), 0644); err != nil {
		return FailureResult(fmt.Errorf("failed to write file: %w", err)), nil
	}

	return SuccessResult(fmt.Sprintf("Wrote %d bytes to %s", len(a.Content), a.Path)), nil
}

// ReadFileTool reads file contents.
type ReadFileTool struct {
	BaseTool
	allowedPaths []string
	maxSizeBytes int64
}

// NewReadFileTool creates a new read file tool.
func NewReadFileTool(maxSizeBytes int64) *ReadFileTool {
	return &ReadFileTool{maxSizeBytes: maxSizeBytes}
}

// WithAllowedPaths sets the allowed path prefixes.
func (t *ReadFileTool) WithAllowedPaths(paths []string) *ReadFileTool {
	t.allowedPaths = paths
	return t
}

// Metadata returns the tool metadata.
func (t *ReadFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "read_file",
		Description: "Read the contents of a file from the filesystem",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Path to the file to read", Required: true},
		},
	}
}

type readFileArgs struct {
	Path string `json:"path"`
}

// Validate validates the arguments.
func (t *ReadFileTool) Validate(args json.RawMessage) error {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Execute reads the file.
func (t *ReadFileTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	if a.Path == "" {
		return FailureResultf("path cannot be empty"), nil
	}

	if !pathAllowed(a.Path, t.allowedPaths) {
		return FailureResultf("access to path '%s' is not allowed", a.Path), nil
	}

	info, err := os.Stat(a.Path)
	if os.IsNotExist(err) {
		return FailureResultf("file does not exist: %s", a.Path), nil
	}
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read file metadata: %w", err)), nil
	}

	if info.Size() > t.maxSizeBytes {
		return FailureResultf("file too large: %d bytes (max: %d bytes)", info.Size(), t.maxSizeBytes), nil
	}

	content, err := os.ReadFile(a.Path)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to read file: %w", err)), nil
	}

	return SuccessResult(string(content)), nil
}

// AppendFileTool appends content to a file, creating it if absent.
// Long chapters are usually produced in several append calls.
type AppendFileTool struct {
	BaseTool
	allowedPaths []string
	maxSizeBytes int64
}

// NewAppendFileTool creates a new append file tool.
func NewAppendFileTool(maxSizeBytes int64) *AppendFileTool {
	return &AppendFileTool{maxSizeBytes: maxSizeBytes}
}

// WithAllowedPaths sets the allowed path prefixes.
func (t *AppendFileTool) WithAllowedPaths(paths []string) *AppendFileTool {
	t.allowedPaths = paths
	return t
}

// Metadata returns the tool metadata.
func (t *AppendFileTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "append_file",
		Description: "Append content to the end of a file, creating the file if it does not exist",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Path of the file to append to", Required: true},
			{Name: "content", ParamType: "string", Description: "Content to append", Required: true},
		},
	}
}

// Validate validates the arguments.
func (t *AppendFileTool) Validate(args json.RawMessage) error {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	if a.Path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	return nil
}

// Execute appends to the file.
func (t *AppendFileTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
	}

	if a.Path == "" {
		return FailureResultf("path cannot be empty"), nil
	}

	if !pathAllowedForWrite(a.Path, t.allowedPaths) {
		return FailureResultf("access to path '%s' is not allowed", a.Path), nil
	}

	if info, err := os.Stat(a.Path); err == nil {
		if info.Size()+int64(len(a.Content)) > t.maxSizeBytes {
			return FailureResultf("file would exceed %d bytes after append", t.maxSizeBytes), nil
		}
	}

	if dir := filepath.Dir(a.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return FailureResult(fmt.Errorf("failed to create directory: %w", err)), nil
		}
	}

	f, err := os.OpenFile(a.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to open file: %w", err)), nil
	}
	defer f.Close()

	if _, err := f.WriteString(a.Content); err != nil {
		return FailureResult(fmt.Errorf("failed to append: %w", err)), nil
	}

	return SuccessResult(fmt.Sprintf("Appended %d bytes to %s", len(a.Content), a.Path)), nil
}

// ListFilesTool lists the files under a directory, recursively.
type ListFilesTool struct {
	BaseTool
	allowedPaths []string
}

// NewListFilesTool creates a new list files tool.
func NewListFilesTool() *ListFilesTool {
	return &ListFilesTool{}
}

// WithAllowedPaths sets the allowed path prefixes.
func (t *ListFilesTool) WithAllowedPaths(paths []string) *ListFilesTool {
	t.allowedPaths = paths
	return t
}

// Metadata returns the tool metadata.
func (t *ListFilesTool) Metadata() ToolMetadata {
	return ToolMetadata{
		Name:        "list_files",
		Description: "List all files under a directory recursively, with sizes",
		Parameters: []ToolParameter{
			{Name: "path", ParamType: "string", Description: "Directory to list (defaults to the current directory)", Required: false},
		},
	}
}

type listFilesArgs struct {
	Path string `json:"path"`
}

// Execute lists the directory.
func (t *ListFilesTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	var a listFilesArgs
	if len(args) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return FailureResult(fmt.Errorf("invalid arguments: %w", err)), nil
		}
	}
	if a.Path == "" {
		a.Path = "."
	}

	if !pathAllowed(a.Path, t.allowedPaths) {
		return FailureResultf("access to path '%s' is not allowed", a.Path), nil
	}

	info, err := os.Stat(a.Path)
	if os.IsNotExist(err) {
		return FailureResultf("directory does not exist: %s", a.Path), nil
	}
	if err != nil {
		return FailureResult(fmt.Errorf("failed to stat directory: %w", err)), nil
	}
	if !info.IsDir() {
		return FailureResultf("not a directory: %s", a.Path), nil
	}

	var lines []string
	err = filepath.WalkDir(a.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Skip hidden directories (snapshot dirs, VCS metadata)
			if path != a.Path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(a.Path, path)
		if err != nil {
			rel = path
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		lines = append(lines, fmt.Sprintf("%s (%d bytes)", rel, fi.Size()))
		return nil
	})
	if err != nil {
		return FailureResult(fmt.Errorf("failed to walk directory: %w", err)), nil
	}

	if len(lines) == 0 {
		return SuccessResult(fmt.Sprintf("No files under %s", a.Path)), nil
	}

	sort.Strings(lines)
	return SuccessResult(strings.Join(lines, "\n")), nil
}
