// Package writers opens the log output targets named in the config.
package writers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// WriterType represents the type of writer to create
type WriterType string

const (
	WriterTypeStdout WriterType = "stdout"
	WriterTypeStderr WriterType = "stderr"
	WriterTypeFile   WriterType = "file"
)

const fileScheme = "file://"

// ParseWriterType determines the writer type from an output string. It
// returns false for outputs that are neither a standard stream nor a file.
func ParseWriterType(output string) (WriterType, bool) {
	switch {
	case output == "" || output == "stdout":
		return WriterTypeStdout, true
	case output == "stderr":
		return WriterTypeStderr, true
	case strings.HasPrefix(output, fileScheme):
		return WriterTypeFile, true
	case strings.Contains(output, "://"):
		return "", false
	case strings.ContainsAny(output, `/\`):
		return WriterTypeFile, true
	default:
		return "", false
	}
}

// CreateWriter opens the output named by a config value:
//   - "stdout" or "" - os.Stdout
//   - "stderr" - os.Stderr
//   - "file:///path/to/file" or "/path/to/file" - the file, appended to, with
//     parent directories created
//
// Closing a standard stream writer is a no-op.
func CreateWriter(output string) (io.WriteCloser, error) {
	typ, ok := ParseWriterType(output)
	if !ok {
		return nil, fmt.Errorf("unsupported output format: %s", output)
	}
	switch typ {
	case WriterTypeStdout:
		return nopCloser{os.Stdout}, nil
	case WriterTypeStderr:
		return nopCloser{os.Stderr}, nil
	default:
		return createFileWriter(strings.TrimPrefix(output, fileScheme))
	}
}

func createFileWriter(filePath string) (io.WriteCloser, error) {
	dir := filepath.Dir(filePath)
	if dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s: %w", filePath, err)
	}
	return file, nil
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }
