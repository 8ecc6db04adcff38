package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/schemahost/internal/fault"
)

// Scenario is one executable engine scenario.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// MaxCallDepth overrides the engine default when > 0. The top-level
	// invocation counts as depth 1.
	MaxCallDepth int `yaml:"max_call_depth,omitempty"`

	// TxPrefix names generated tx ids <prefix>-<n>.
	TxPrefix string `yaml:"tx_prefix,omitempty"`

	Schemas    []SchemaStep `yaml:"schemas"`
	Setup      []CallStep   `yaml:"setup,omitempty"`
	Flow       []FlowStep   `yaml:"flow"`
	Assertions []Assertion  `yaml:"assertions"`
}

// SchemaStep deploys one source under an alias.
type SchemaStep struct {
	Alias  string `yaml:"as"`
	Source string `yaml:"source"`
	Owner  string `yaml:"owner"`
}

// CallStep is one top-level call. Call is alias.procedure.
type CallStep struct {
	Call   string `yaml:"call"`
	Caller string `yaml:"caller"`
	Args   []any  `yaml:"args,omitempty"`

	// Height defaults to the next logical height.
	Height int64 `yaml:"height,omitempty"`

	// TxID defaults to the next generated id.
	TxID string `yaml:"tx_id,omitempty"`
}

// FlowStep is a call with an optional expectation.
type FlowStep struct {
	CallStep `yaml:",inline"`
	Expect   *ExpectClause `yaml:"expect,omitempty"`
}

// ExpectClause describes the expected outcome of a flow call. An empty
// Kind expects success.
type ExpectClause struct {
	Kind string `yaml:"kind,omitempty"`

	// Message must equal the error message exactly.
	Message string `yaml:"message,omitempty"`

	// Result is compared against the returned value: a scalar for scalar
	// procedures, a list of row maps for table procedures.
	Result any `yaml:"result,omitempty"`
}

// Assertion validates the trace or final state.
type Assertion struct {
	Type string `yaml:"type"`

	// Call is alias.procedure (trace_contains, trace_count).
	Call string `yaml:"call,omitempty"`

	// Status or Kind narrow trace_contains.
	Status string `yaml:"status,omitempty"`
	Kind   string `yaml:"kind,omitempty"`

	// Calls is the expected order (trace_order).
	Calls []string `yaml:"calls,omitempty"`

	// Count is the expected number of calls or rows.
	Count int `yaml:"count,omitempty"`

	// Table is alias.table (final_state, row_count).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion types.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// LoadScenario reads a scenario file. Source paths are resolved relative
// to the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads a scenario file, resolving relative
// source paths against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	for i, step := range s.Schemas {
		if step.Source != "" && !filepath.IsAbs(step.Source) && basePath != "" {
			s.Schemas[i].Source = filepath.Join(basePath, step.Source)
		}
	}
	for _, step := range s.Schemas {
		if _, err := os.Stat(step.Source); err != nil {
			return nil, fmt.Errorf("invalid scenario: schema %s: source not found: %s", step.Alias, step.Source)
		}
	}
	return s, nil
}

// ParseScenario decodes and validates scenario YAML. Source paths are left
// as written.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxCallDepth < 0 {
		return fmt.Errorf("max_call_depth must be non-negative")
	}
	if len(s.Schemas) == 0 {
		return fmt.Errorf("schemas list is required and must be non-empty")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	aliases := make(map[string]bool, len(s.Schemas))
	for i, step := range s.Schemas {
		switch {
		case step.Alias == "":
			return fmt.Errorf("schemas[%d]: as is required", i)
		case aliases[step.Alias]:
			return fmt.Errorf("schemas[%d]: duplicate alias %q", i, step.Alias)
		case step.Source == "":
			return fmt.Errorf("schemas[%d]: source is required", i)
		case step.Owner == "":
			return fmt.Errorf("schemas[%d]: owner is required", i)
		}
		aliases[step.Alias] = true
	}

	for i, step := range s.Setup {
		if err := validateCall(step, aliases); err != nil {
			return fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	for i, step := range s.Flow {
		if err := validateCall(step.CallStep, aliases); err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}
		if step.Expect != nil && step.Expect.Kind != "" && !knownKind(step.Expect.Kind) {
			return fmt.Errorf("flow[%d].expect: unknown kind %q", i, step.Expect.Kind)
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(a, aliases); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateCall(step CallStep, aliases map[string]bool) error {
	if step.Call == "" {
		return fmt.Errorf("call is required")
	}
	alias, _, err := splitRef(step.Call)
	if err != nil {
		return err
	}
	if !aliases[alias] {
		return fmt.Errorf("unknown schema alias %q", alias)
	}
	return nil
}

func validateAssertion(a Assertion, aliases map[string]bool) error {
	checkRef := func(ref string) error {
		alias, _, err := splitRef(ref)
		if err != nil {
			return err
		}
		if !aliases[alias] {
			return fmt.Errorf("unknown schema alias %q", alias)
		}
		return nil
	}

	switch a.Type {
	case "":
		return fmt.Errorf("type is required")
	case AssertTraceContains, AssertTraceCount:
		if a.Call == "" {
			return fmt.Errorf("call is required for %s", a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
		return checkRef(a.Call)
	case AssertTraceOrder:
		if len(a.Calls) == 0 {
			return fmt.Errorf("calls list is required for trace_order")
		}
		for _, c := range a.Calls {
			if err := checkRef(c); err != nil {
				return err
			}
		}
		return nil
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("table is required for final_state")
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("expect is required for final_state")
		}
		return checkRef(a.Table)
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("table is required for row_count")
		}
		if a.Count < 0 {
			return fmt.Errorf("count must be non-negative")
		}
		return checkRef(a.Table)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// splitRef splits alias.name.
func splitRef(ref string) (alias, name string, err error) {
	alias, name, ok := strings.Cut(ref, ".")
	if !ok || alias == "" || name == "" {
		return "", "", fmt.Errorf("%q must be alias.name", ref)
	}
	return alias, name, nil
}

func knownKind(k string) bool {
	for _, kind := range fault.Kinds {
		if string(kind) == k {
			return true
		}
	}
	return false
}
