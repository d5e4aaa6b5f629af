package mcvar

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"testing"
)

var quietNewDB = testing.Testing()

// RegisterLogger returns the logger to pass as bstore.Options.RegisterLogger
// when opening the database at path.
//
// Under test, nil is returned for databases that don't exist yet, each test
// creates fresh databases and the schema logging is just noise.
func RegisterLogger(path string, log *slog.Logger) *slog.Logger {
	if !quietNewDB {
		return log
	}
	if _, err := os.Stat(path); err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return log
}
