// Package artifact persists the merged configuration and keeps it fresh on a
// schedule.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/John-Robertt/v2clash/internal/model"
)

type WriteError struct {
	AppError model.AppError
	Cause    error
}

func (e *WriteError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *WriteError) Unwrap() error { return e.Cause }

// WriteFile replaces path with data atomically: readers see either the old
// file or the complete new one.
func WriteFile(path string, data []byte) error {
	fail := func(message string, cause error) error {
		return &WriteError{
			AppError: model.AppError{
				Code:    "ARTIFACT_WRITE_ERROR",
				Message: message,
				Stage:   "write_artifact",
				URL:     path,
			},
			Cause: cause,
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fail("创建输出目录失败", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fail("创建临时文件失败", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// No-op once the rename succeeded.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fail("写入临时文件失败", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fail("写入临时文件失败", err)
	}
	if err := tmp.Close(); err != nil {
		return fail("写入临时文件失败", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fail("设置文件权限失败", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fail("替换输出文件失败", err)
	}
	return nil
}
