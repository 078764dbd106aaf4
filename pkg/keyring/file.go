package keyring

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	tokenFileName = "admin.token"
	tokenFileMode = 0600
)

// FileStore keeps the token in a 0600 file. It backs System on hosts
// without a keyring service, such as headless kiosks.
type FileStore struct {
	dir string
}

var (
	fileReadFile = os.ReadFile
	fileRemove   = os.Remove
	fileRename   = os.Rename
	fileMkdirAll = os.MkdirAll
	fileTempFile = os.CreateTemp
)

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (f *FileStore) path() string {
	return filepath.Join(f.dir, tokenFileName)
}

func (f *FileStore) Get() (string, error) {
	data, err := fileReadFile(f.path())
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNotFound
	}
	return token, nil
}

// Set writes the token atomically through a temp file and rename.
func (f *FileStore) Set(token string) error {
	if err := fileMkdirAll(f.dir, 0755); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	tmp, err := fileTempFile(f.dir, ".admin.token.tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(token); err != nil {
		tmp.Close()
		fileRemove(tmpPath)
		return fmt.Errorf("write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, tokenFileMode); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("set permissions: %w", err)
	}
	if err := fileRename(tmpPath, f.path()); err != nil {
		fileRemove(tmpPath)
		return fmt.Errorf("rename token file: %w", err)
	}
	return nil
}

func (f *FileStore) Delete() error {
	err := fileRemove(f.path())
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
