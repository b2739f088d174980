package fileutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrFinalized is returned when a committed or rolled back transaction is
// used again.
var ErrFinalized = errors.New("transaction already finalized")

// OperationType defines the type of file operation.
type OperationType int

const (
	// OpWrite creates or overwrites a file.
	OpWrite OperationType = iota
	// OpDelete removes a file.
	OpDelete
)

func (t OperationType) String() string {
	switch t {
	case OpWrite:
		return "write"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileOperation is one staged change.
type FileOperation struct {
	Type    OperationType
	Path    string
	Content []byte
	Mode    os.FileMode

	backup  string
	applied bool
}

// FileTransaction applies a batch of writes and deletes. If any operation
// fails, the ones already applied are undone from backups.
type FileTransaction struct {
	id         string
	operations []FileOperation
	tempDir    string
	committed  bool
	rolledBack bool
	mu         sync.Mutex
}

// NewFileTransaction creates a transaction with its own backup directory.
func NewFileTransaction() (*FileTransaction, error) {
	tx := &FileTransaction{id: uuid.NewString()}
	tempDir, err := os.MkdirTemp("", "adorable-tx-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	tx.tempDir = tempDir
	return tx, nil
}

// ID returns the transaction ID.
func (tx *FileTransaction) ID() string {
	return tx.id
}

// Write stages a file write.
func (tx *FileTransaction) Write(path string, content []byte, mode os.FileMode) error {
	return tx.stage(FileOperation{Type: OpWrite, Path: path, Content: content, Mode: mode})
}

// Delete stages a file removal. Removing a missing file succeeds.
func (tx *FileTransaction) Delete(path string) error {
	return tx.stage(FileOperation{Type: OpDelete, Path: path})
}

func (tx *FileTransaction) stage(op FileOperation) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.committed || tx.rolledBack {
		return ErrFinalized
	}
	tx.operations = append(tx.operations, op)
	return nil
}

// OperationCount returns the number of staged operations.
func (tx *FileTransaction) OperationCount() int {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	return len(tx.operations)
}

// Commit backs up every target, then applies the operations in order.
func (tx *FileTransaction) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed || tx.rolledBack {
		return ErrFinalized
	}

	for i := range tx.operations {
		op := &tx.operations[i]
		if _, err := os.Stat(op.Path); err != nil {
			continue
		}
		backup := filepath.Join(tx.tempDir, fmt.Sprintf("backup-%d", i))
		if err := copyFile(op.Path, backup); err != nil {
			tx.rollbackLocked()
			return fmt.Errorf("backup %s: %w", op.Path, err)
		}
		op.backup = backup
	}

	for i := range tx.operations {
		op := &tx.operations[i]
		var err error
		switch op.Type {
		case OpWrite:
			err = AtomicWrite(op.Path, op.Content, op.Mode)
		case OpDelete:
			if err = os.Remove(op.Path); errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		}
		if err != nil {
			tx.rollbackLocked()
			return fmt.Errorf("%s %s: %w", op.Type, op.Path, err)
		}
		op.applied = true
	}

	tx.committed = true
	tx.cleanup()
	return nil
}

// Rollback discards a transaction that was not committed.
func (tx *FileTransaction) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()

	if tx.committed {
		return fmt.Errorf("cannot rollback committed transaction")
	}
	if !tx.rolledBack {
		tx.rollbackLocked()
	}
	return nil
}

func (tx *FileTransaction) rollbackLocked() {
	for i := len(tx.operations) - 1; i >= 0; i-- {
		op := &tx.operations[i]
		if !op.applied {
			continue
		}
		if op.backup != "" {
			_ = copyFile(op.backup, op.Path)
		} else if op.Type == OpWrite {
			_ = os.Remove(op.Path)
		}
	}
	tx.rolledBack = true
	tx.cleanup()
}

func (tx *FileTransaction) cleanup() {
	if tx.tempDir != "" {
		_ = os.RemoveAll(tx.tempDir)
		tx.tempDir = ""
	}
}

// copyFile copies a file from src to dst, preserving its mode.
func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return os.WriteFile(dst, data, 0644)
	}
	return os.WriteFile(dst, data, info.Mode())
}
