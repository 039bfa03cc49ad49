package lens

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"

	"github.com/go-analyze/bulk"
)

// ErrNoEnclosingFunction reports a call expression found outside any function
// definition. The selector only walks function bodies, so hitting this is an
// invariant violation and aborts the run.
var ErrNoEnclosingFunction = errors.New("call expression has no enclosing function definition")

// OutcomeKind classifies how a single transformation run ended.
type OutcomeKind int

const (
	// OutcomeCommitted means exactly one instance was rewritten.
	OutcomeCommitted OutcomeKind = iota
	// OutcomeOutOfRange means the target ordinal exceeds the instance count.
	// The source is untouched.
	OutcomeOutOfRange
	// OutcomeFailed means the rewrite was attempted but the buffer or
	// underlying engine reported a diagnostic error.
	OutcomeFailed
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeCommitted:
		return "committed"
	case OutcomeOutOfRange:
		return "out-of-range"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of applying a transformation to one instance.
type Outcome struct {
	Kind OutcomeKind
	// Text holds the rewritten source when Kind is OutcomeCommitted.
	Text []byte
	// Instances is the total number of instances counted during selection.
	Instances int
	// Err carries the diagnostic for OutcomeFailed.
	Err error
}

// runState tracks the per-run state machine:
// Uninitialized → Selecting → {Found, NotFound}; Found → Rewriting →
// {Committed, Failed}. Transitions are asserted in debug fashion; an illegal
// transition panics since it indicates a programming error, not input error.
type runState int

const (
	stateUninitialized runState = iota
	stateSelecting
	stateFound
	stateNotFound
	stateRewriting
	stateCommitted
	stateFailed
)

var legalTransitions = map[runState][]runState{
	stateUninitialized: {stateSelecting},
	stateSelecting:     {stateFound, stateNotFound},
	stateFound:         {stateRewriting},
	stateRewriting:     {stateCommitted, stateFailed},
}

func (s *runState) to(next runState) {
	if !slices.Contains(legalTransitions[*s], next) {
		panic(fmt.Sprintf("illegal run state transition %d -> %d", *s, next))
	}
	*s = next
}

// Transformation is one source-to-source reduction pass. Instances are
// numbered 1-based in traversal order; each Apply targets exactly one.
type Transformation interface {
	// Name is the registry key, e.g. "simplify-callexpr".
	Name() string
	// Description is a short human-readable summary for usage output.
	Description() string
	// Apply rewrites instance number counter and returns the outcome.
	// The program itself is never mutated; rewritten text is returned.
	Apply(prog *Program, counter int) Outcome
	// CountInstances returns the number of instances without rewriting.
	CountInstances(prog *Program) int
}

type registration struct {
	factory     func() Transformation
	description string
}

var (
	registryLock sync.RWMutex
	registry     = make(map[string]registration)
)

// Register adds a transformation factory under its name. Called from package
// init functions; duplicate names panic.
func Register(name, description string, factory func() Transformation) {
	registryLock.Lock()
	defer registryLock.Unlock()
	if _, exists := registry[name]; exists {
		panic("duplicate transformation registration: " + name)
	}
	registry[name] = registration{factory: factory, description: description}
}

// Lookup returns a fresh instance of the named transformation.
func Lookup(name string) (Transformation, bool) {
	registryLock.RLock()
	defer registryLock.RUnlock()
	reg, ok := registry[name]
	if !ok {
		return nil, false
	}
	return reg.factory(), true
}

// TransformationNames returns all registered names, sorted.
func TransformationNames() []string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	names := bulk.MapKeysSlice(registry)
	slices.Sort(names)
	return names
}

// Describe returns the registered description for a transformation name.
func Describe(name string) string {
	registryLock.RLock()
	defer registryLock.RUnlock()
	return registry[name].description
}

// ApplySingle runs one transformation instance against a file on disk and, on
// success, writes the rewritten text back in place. This is the single-shot
// mode used when a driver orchestrates ordinals externally.
func ApplySingle(path, transName string, counter int) (Outcome, error) {
	trans, ok := Lookup(transName)
	if !ok {
		return Outcome{}, fmt.Errorf("unknown transformation %q (known: %v)", transName, TransformationNames())
	}
	if counter < 1 {
		return Outcome{}, fmt.Errorf("counter must be positive, got %d", counter)
	}
	prog, err := ParseCFile(path)
	if err != nil {
		return Outcome{}, err
	}
	outcome := trans.Apply(prog, counter)
	if outcome.Kind == OutcomeCommitted {
		if err := os.WriteFile(path, outcome.Text, 0o644); err != nil {
			return outcome, fmt.Errorf("write rewritten source: %w", err)
		}
	}
	return outcome, nil
}

// CountSingle returns the instance count for a transformation over a file,
// the query mode counterpart to ApplySingle.
func CountSingle(path, transName string) (int, error) {
	trans, ok := Lookup(transName)
	if !ok {
		return 0, fmt.Errorf("unknown transformation %q (known: %v)", transName, TransformationNames())
	}
	prog, err := ParseCFile(path)
	if err != nil {
		return 0, err
	}
	return trans.CountInstances(prog), nil
}
