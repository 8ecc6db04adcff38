package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// SuiteResult summarizes a directory of scenarios.
type SuiteResult struct {
	Total    int            `json:"total"`
	Passed   int            `json:"passed"`
	Failed   int            `json:"failed"`
	Failures []SuiteFailure `json:"failures,omitempty"`
}

// SuiteFailure is one failing scenario.
type SuiteFailure struct {
	Scenario string   `json:"scenario"`
	Path     string   `json:"path"`
	Errors   []string `json:"errors"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("scenario directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// RunSuite runs every scenario under dir. The visit callback, if set, sees
// each scenario's outcome as it completes; its result is nil when the
// scenario could not run.
func RunSuite(dir string, visit func(path string, s *Scenario, res *Result, err error)) (*SuiteResult, error) {
	paths, err := FindScenarios(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no scenarios found in %s", dir)
	}

	suite := &SuiteResult{}
	for _, path := range paths {
		s, res, err := RunFile(path)
		if visit != nil {
			visit(path, s, res, err)
		}
		suite.Total++

		name := path
		if s != nil {
			name = s.Name
		}
		switch {
		case err != nil:
			suite.Failed++
			suite.Failures = append(suite.Failures, SuiteFailure{Scenario: name, Path: path, Errors: []string{err.Error()}})
		case !res.Pass:
			suite.Failed++
			suite.Failures = append(suite.Failures, SuiteFailure{Scenario: name, Path: path, Errors: res.Errors})
		default:
			suite.Passed++
		}
	}
	return suite, nil
}
