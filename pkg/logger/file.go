package logger

import (
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileLogger is a StandardLogger appending to a file it owns.
type FileLogger struct {
	*StandardLogger
	f    *os.File
	once sync.Once
	err  error
}

// OpenFile opens path for appending, creating it and its directory.
func OpenFile(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return nil, err
	}
	return &FileLogger{
		StandardLogger: NewStandardLogger(log.New(f, "", log.LstdFlags)),
		f:              f,
	}, nil
}

// Close closes the file. Later calls return the first result.
func (l *FileLogger) Close() error {
	l.once.Do(func() { l.err = l.f.Close() })
	return l.err
}

var _ Logger = (*FileLogger)(nil)
