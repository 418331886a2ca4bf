// Package property implements the thread-safe, keyed property store: the
// store behind a device's configuration and runtime-published state.
//
// Every Set/Update (single or bulk) emits both a typed and a stringified
// change event before returning to the caller (invariant I1); Delete
// removes a key without emitting any event. Subscriber callbacks run
// outside the store's internal lock (invariant I2) so that a subscriber may
// safely call back into the store.
package property

import (
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/FairRootGroup/fairmq-go/pkg/eventbus"
)

// ErrNotFound is returned by Get when a mandatory key is absent.
var ErrNotFound = fmt.Errorf("property: key not found")

// Kind identifies the concrete type carried by a Value.
type Kind int

const (
	KindInt64 Kind = iota
	KindUint64
	KindFloat64
	KindBool
	KindString
	KindPath
	KindList
)

// Value is a tagged property value. Exactly one field matching Kind is
// meaningful; List holds a homogeneous sequence of further Values (the
// "ordered sequence of any of the preceding" variant of §3).
type Value struct {
	Kind Kind
	I    int64
	U    uint64
	F    float64
	B    bool
	S    string // also backs KindPath
	List []Value
}

func Int64(v int64) Value     { return Value{Kind: KindInt64, I: v} }
func Uint64(v uint64) Value   { return Value{Kind: KindUint64, U: v} }
func Float64(v float64) Value { return Value{Kind: KindFloat64, F: v} }
func Bool(v bool) Value       { return Value{Kind: KindBool, B: v} }
func String(v string) Value   { return Value{Kind: KindString, S: v} }
func Path(v string) Value     { return Value{Kind: KindPath, S: v} }
func List(vs ...Value) Value  { return Value{Kind: KindList, List: vs} }

// Formatter renders a Value of the kind it is registered for as a string.
type Formatter func(Value) string

var formatters = map[Kind]Formatter{
	KindInt64:   func(v Value) string { return fmt.Sprintf("%d", v.I) },
	KindUint64:  func(v Value) string { return fmt.Sprintf("%d", v.U) },
	KindFloat64: func(v Value) string { return fmt.Sprintf("%g", v.F) },
	KindBool: func(v Value) string {
		if v.B {
			return "true"
		}
		return "false"
	},
	KindString: func(v Value) string { return v.S },
	KindPath:   func(v Value) string { return fmt.Sprintf("%q", v.S) },
}

func init() {
	formatters[KindList] = formatListValue
}

func formatListValue(v Value) string {
	parts := make([]string, len(v.List))
	for i, e := range v.List {
		parts[i] = formatValue(e)
	}
	return strings.Join(parts, ",")
}

func formatValue(v Value) string {
	if fn, ok := formatters[v.Kind]; ok {
		return fn(v)
	}
	return fmt.Sprintf("%v", v)
}

// RegisterFormatter installs (or replaces) the stringifier for a kind. Must
// be called before any value of that kind is rendered (invariant I3).
func RegisterFormatter(k Kind, fn Formatter) {
	formatters[k] = fn
}

// ChangeEvent is the typed change notification emitted on every mutation.
type ChangeEvent struct {
	Key   string
	Value Value
}

// StringChangeEvent is the stringified sibling of ChangeEvent, emitted
// atomically alongside it.
type StringChangeEvent struct {
	Key   string
	Value string
}

// Store is the thread-safe keyed property store.
type Store struct {
	mu     sync.Mutex
	values map[string]Value
	bus    *eventbus.Bus
}

// New creates an empty property store.
func New() *Store {
	return &Store{
		values: make(map[string]Value),
		bus:    eventbus.New(),
	}
}

// Set inserts or overwrites key, emitting the typed and stringified change
// events.
func (s *Store) Set(key string, v Value) {
	s.mu.Lock()
	s.values[key] = v
	s.mu.Unlock()
	s.notify(key, v)
}

// Update overwrites key only if it already exists; it returns false and
// performs no mutation otherwise.
func (s *Store) Update(key string, v Value) bool {
	s.mu.Lock()
	if _, ok := s.values[key]; !ok {
		s.mu.Unlock()
		return false
	}
	s.values[key] = v
	s.mu.Unlock()
	s.notify(key, v)
	return true
}

// SetBulk sets every key in kvs, emitting one pair of change events per key.
func (s *Store) SetBulk(kvs map[string]Value) {
	s.mu.Lock()
	for k, v := range kvs {
		s.values[k] = v
	}
	s.mu.Unlock()
	for k, v := range kvs {
		s.notify(k, v)
	}
}

// UpdateBulk updates every key in kvs transactionally: if any key is
// absent, no mutation occurs and false is returned.
func (s *Store) UpdateBulk(kvs map[string]Value) bool {
	s.mu.Lock()
	for k := range kvs {
		if _, ok := s.values[k]; !ok {
			s.mu.Unlock()
			return false
		}
	}
	for k, v := range kvs {
		s.values[k] = v
	}
	s.mu.Unlock()
	for k, v := range kvs {
		s.notify(k, v)
	}
	return true
}

func (s *Store) notify(key string, v Value) {
	eventbus.Emit[ChangeEvent](s.bus, key, ChangeEvent{Key: key, Value: v})
	eventbus.Emit[StringChangeEvent](s.bus, key, StringChangeEvent{Key: key, Value: formatValue(v)})
}

// Get returns the value for key, or ErrNotFound if absent.
func (s *Store) Get(key string) (Value, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// GetOr returns the value for key, or def if absent.
func (s *Store) GetOr(key string, def Value) Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// GetAsString renders the value for key using its registered formatter.
func (s *Store) GetAsString(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	return formatValue(v), nil
}

// GetAsStringOr renders the value for key, or returns def if absent.
func (s *Store) GetAsStringOr(key, def string) string {
	s.mu.Lock()
	v, ok := s.values[key]
	s.mu.Unlock()
	if !ok {
		return def
	}
	return formatValue(v)
}

// Delete removes key, if present. No change event is emitted.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
}

// QueryPrefix returns every key with the given prefix. This is the fast
// path relative to QueryRegex.
func (s *Store) QueryPrefix(prefix string) map[string]Value {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Value)
	for k, v := range s.values {
		if strings.HasPrefix(k, prefix) {
			out[k] = v
		}
	}
	return out
}

// QueryRegex returns every key matching pattern.
func (s *Store) QueryRegex(pattern string) (map[string]Value, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("property: bad regex %q: %w", pattern, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Value)
	for k, v := range s.values {
		if re.MatchString(k) {
			out[k] = v
		}
	}
	return out, nil
}

// Subscribe registers fn for the typed change event of key, replacing any
// previous subscription under name.
func (s *Store) Subscribe(name, key string, fn func(ChangeEvent)) {
	eventbus.Subscribe[ChangeEvent](s.bus, key, name, fn)
}

// Unsubscribe removes a typed subscription previously installed with
// Subscribe.
func (s *Store) Unsubscribe(name, key string) {
	eventbus.Unsubscribe[ChangeEvent](s.bus, key, name)
}

// SubscribeAsString registers fn for the stringified change event of key.
func (s *Store) SubscribeAsString(name, key string, fn func(StringChangeEvent)) {
	eventbus.Subscribe[StringChangeEvent](s.bus, key, name, fn)
}

// UnsubscribeAsString removes a stringified subscription.
func (s *Store) UnsubscribeAsString(name, key string) {
	eventbus.Unsubscribe[StringChangeEvent](s.bus, key, name)
}
