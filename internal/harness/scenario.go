package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/graveldb/gravel/internal/event"
)

// Scenario is a YAML-defined conformance test: a sequence of transactions
// run against a fresh domain, with assertions over the resulting feed trace
// and final graph.
type Scenario struct {
	// Name uniquely identifies this scenario; it doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Domain is the domain name. Defaults to "test".
	Domain string `yaml:"domain,omitempty"`

	// Transactions is the ordered list of transactions to run.
	Transactions []TxStep `yaml:"transactions"`

	// Assertions validate the feed trace and the final graph.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TxStep is one transaction: a list of operations plus the expected fate.
type TxStep struct {
	// Name describes the transaction in failure messages.
	Name string `yaml:"name,omitempty"`

	// Ops are applied in order inside one transaction.
	Ops []OpStep `yaml:"ops"`

	// Fail marks a transaction that is expected to abort. The runner
	// treats a commit of such a transaction as a scenario failure, and
	// its feed document never appears in the trace.
	Fail bool `yaml:"fail,omitempty"`

	// Abort forces the transaction to return an error after its ops ran,
	// exercising rollback without needing an op to fault.
	Abort bool `yaml:"abort,omitempty"`
}

// OpStep is a single graph operation. Op selects the verb; the other fields
// are verb-specific.
type OpStep struct {
	// Op is one of: create, destroy, root, unroot, set, delete, append,
	// insert, setat, removeat, clear, add, remove.
	Op string `yaml:"op"`

	// As binds the object created by "create" to a label.
	As string `yaml:"as,omitempty"`

	// Kind is the object kind for "create": plain, array, map, or set.
	Kind string `yaml:"kind,omitempty"`

	// Target is the label of the object the op applies to.
	Target string `yaml:"target,omitempty"`

	// Prop is the property or map key name.
	Prop string `yaml:"prop,omitempty"`

	// Index is the collection index for insert/setat/removeat.
	Index int `yaml:"index,omitempty"`

	// Value is the operand. Scalars map directly; {ref: label} produces
	// an object reference; null produces the absent value.
	Value any `yaml:"value,omitempty"`
}

// Assertion validates the trace or the final graph.
type Assertion struct {
	// Type is one of: serial, objects, feed_count, feed_order, property,
	// destroyed.
	Type string `yaml:"type"`

	// Serial is the expected final transaction serial (type serial).
	Serial uint32 `yaml:"serial,omitempty"`

	// Count is the expected number: live objects (type objects) or
	// matching records (type feed_count).
	Count int `yaml:"count,omitempty"`

	// Op is the feed opcode to count (type feed_count).
	Op string `yaml:"op,omitempty"`

	// Ops is the expected opcode subsequence (type feed_order).
	Ops []string `yaml:"ops,omitempty"`

	// Target is the object label (types property, destroyed).
	Target string `yaml:"target,omitempty"`

	// Prop and Value are the property name and expected final value
	// (type property).
	Prop  string `yaml:"prop,omitempty"`
	Value any    `yaml:"value,omitempty"`
}

// Assertion type constants.
const (
	AssertSerial    = "serial"
	AssertObjects   = "objects"
	AssertFeedCount = "feed_count"
	AssertFeedOrder = "feed_order"
	AssertProperty  = "property"
	AssertDestroyed = "destroyed"
)

// LoadScenario parses a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var s Scenario
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parsing scenario %s: %w", path, err)
	}

	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: name is required", path)
	}
	if len(s.Transactions) == 0 {
		return nil, fmt.Errorf("scenario %s: at least one transaction is required", path)
	}
	if s.Domain == "" {
		s.Domain = "test"
	}

	return &s, nil
}

// LoadScenarios loads every .yaml scenario under dir, sorted by file name
// for deterministic test ordering.
func LoadScenarios(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}

	return scenarios, nil
}

// toValue converts a YAML operand into a feed value. Mappings with a single
// "ref" key become object references resolved against the label table.
func toValue(raw any, labels map[string]event.ObjectID) (event.Value, error) {
	switch v := raw.(type) {
	case nil:
		return event.Null{}, nil
	case bool:
		return event.Bool(v), nil
	case int:
		return event.Int(v), nil
	case int64:
		return event.Int(v), nil
	case float64:
		return event.Float(v), nil
	case string:
		return event.String(v), nil
	case map[string]any:
		label, ok := v["ref"].(string)
		if !ok || len(v) != 1 {
			return nil, fmt.Errorf("mapping value must be {ref: label}, got %v", v)
		}
		id, ok := labels[label]
		if !ok {
			return nil, fmt.Errorf("ref to unknown label %q", label)
		}
		return event.Ref(id), nil
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", raw, raw)
	}
}
