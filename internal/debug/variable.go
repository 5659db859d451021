package debug

import (
	"fmt"
	"sync"

	"github.com/tidwall/gjson"
)

// VariableReader fetches variables from the paused execution context.
// A single call covers many names so the inspector can batch cache misses
// instead of issuing N individual reads.
type VariableReader interface {
	ReadVariables(names []string) (map[string]Variable, error)
}

// Inspector batches and caches variable reads for a client. Cached values
// are valid only for the lifetime of one pause: InvalidateCache must be
// called on every resume, and a stale value served after resume is a
// correctness bug, not a performance nuance.
type Inspector struct {
	reader VariableReader
	mu     sync.RWMutex

	// Values fetched during the current pause.
	cache map[string]Variable

	// Watched names, persistent across pauses.
	watches []string
}

// NewInspector creates an inspector backed by the given reader.
func NewInspector(reader VariableReader) *Inspector {
	return &Inspector{
		reader: reader,
		cache:  make(map[string]Variable),
	}
}

// InspectVariables returns the named variables, serving from cache where
// possible and issuing one batched read for the misses.
func (in *Inspector) InspectVariables(names []string) (map[string]Variable, error) {
	result := make(map[string]Variable, len(names))

	in.mu.RLock()
	var misses []string
	for _, name := range names {
		if v, ok := in.cache[name]; ok {
			result[name] = v
		} else {
			misses = append(misses, name)
		}
	}
	in.mu.RUnlock()

	if len(misses) == 0 {
		return result, nil
	}
	if in.reader == nil {
		return result, fmt.Errorf("no variable reader: %w", ErrInvalidState)
	}

	fetched, err := in.reader.ReadVariables(misses)
	if err != nil {
		return nil, fmt.Errorf("read variables: %w", err)
	}

	in.mu.Lock()
	for name, v := range fetched {
		in.cache[name] = v
		result[name] = v
	}
	in.mu.Unlock()

	return result, nil
}

// WatchVariable adds a name to the persistent watch list.
func (in *Inspector) WatchVariable(name string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for _, w := range in.watches {
		if w == name {
			return
		}
	}
	in.watches = append(in.watches, name)
}

// UnwatchVariable removes a name from the watch list.
func (in *Inspector) UnwatchVariable(name string) {
	in.mu.Lock()
	defer in.mu.Unlock()

	for i, w := range in.watches {
		if w == name {
			in.watches = append(in.watches[:i], in.watches[i+1:]...)
			return
		}
	}
}

// Watches returns the watched names.
func (in *Inspector) Watches() []string {
	in.mu.RLock()
	defer in.mu.RUnlock()

	result := make([]string, len(in.watches))
	copy(result, in.watches)
	return result
}

// InspectWatched inspects every watched variable. Unresolvable watches
// come back as error placeholders rather than failing the batch.
func (in *Inspector) InspectWatched() map[string]Variable {
	watches := in.Watches()
	if len(watches) == 0 {
		return map[string]Variable{}
	}

	result, err := in.InspectVariables(watches)
	if err != nil {
		result = make(map[string]Variable, len(watches))
	}
	for _, name := range watches {
		if _, ok := result[name]; !ok {
			result[name] = Variable{
				Name:  name,
				Value: "<unavailable>",
				Type:  "error",
			}
		}
	}
	return result
}

// InvalidateCache drops all cached values. Idempotent; must be called on
// every resume.
func (in *Inspector) InvalidateCache() {
	in.mu.Lock()
	in.cache = make(map[string]Variable)
	in.mu.Unlock()
}

// ExpandVariable returns the children of a structured variable. Structured
// values carry a JSON rendering in Value; expansion walks its top level
// only, so nested tables expand lazily through further calls.
func (in *Inspector) ExpandVariable(v Variable) ([]Variable, error) {
	if !v.HasChildren {
		return nil, nil
	}
	if !gjson.Valid(v.Value) {
		return nil, fmt.Errorf("variable %s has no expandable rendering: %w", v.Name, ErrEvaluation)
	}

	var children []Variable
	gjson.Parse(v.Value).ForEach(func(key, value gjson.Result) bool {
		children = append(children, Variable{
			Name:        key.String(),
			Value:       value.Raw,
			Type:        luaTypeName(value),
			HasChildren: value.IsObject() || value.IsArray(),
		})
		return true
	})
	return children, nil
}

// luaTypeName maps a JSON value to the guest type it was rendered from.
func luaTypeName(r gjson.Result) string {
	switch r.Type {
	case gjson.Number:
		return "number"
	case gjson.String:
		return "string"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "nil"
	default:
		return "table"
	}
}

// FormatVariable renders a variable as "name: type = value".
func (in *Inspector) FormatVariable(v Variable) string {
	if v.Type != "" {
		return fmt.Sprintf("%s: %s = %s", v.Name, v.Type, v.Value)
	}
	return fmt.Sprintf("%s = %s", v.Name, v.Value)
}
