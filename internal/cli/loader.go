package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/schemahost/internal/engine"
	"github.com/roach88/schemahost/internal/store"
)

// Command error codes (E001-E099).
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No CUE files found
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeWriteFailed = "E007" // File write error
	ErrCodeBadArgs     = "E008" // Malformed --args or flag value
	ErrCodeDatabase    = "E009" // Database open/read failure
)

// LoadError is a command-level problem with an input path.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// session is an engine over an open store, loaded with every deployed
// schema. Close releases the store.
type session struct {
	store  *store.Store
	engine *engine.Engine
}

func (s *session) Close() error {
	return s.store.Close()
}

// openSession opens the configured database and rebuilds the registry
// from its deployment log.
func openSession(ctx context.Context, opts *RootOptions, extra ...engine.Option) (*session, error) {
	cfg, logger := opts.settings()
	st, err := store.Open(cfg.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	engineOpts := append([]engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxCallDepth(cfg.Engine.MaxCallDepth),
	}, extra...)
	e := engine.New(st, engineOpts...)
	if err := e.Load(ctx); err != nil {
		st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to load deployed schemas", err)
	}
	return &session{store: st, engine: e}, nil
}

// readSource reads one schema source file.
func readSource(path string) (string, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("schema file not found: %s", path)}
	}
	if err != nil {
		return "", &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("read %s: %v", path, err)}
	}
	return string(data), nil
}

// FindCUEFiles expands each path: files are kept, directories are walked
// for .cue files. The result is sorted and free of duplicates.
func FindCUEFiles(paths ...string) ([]string, error) {
	seen := map[string]bool{}
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if os.IsNotExist(err) {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: err.Error()}
		}
		if !info.IsDir() {
			if !seen[p] {
				seen[p] = true
				files = append(files, p)
			}
			continue
		}
		err = filepath.WalkDir(p, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && filepath.Ext(path) == ".cue" && !seen[path] {
				seen[path] = true
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning %s: %v", p, err)}
		}
	}
	if len(files) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no CUE files found"}
	}
	sort.Strings(files)
	return files, nil
}
