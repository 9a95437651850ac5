package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/statemesh/core"
	"github.com/hupe1980/statemesh/state"
)

var (
	// ErrEntryOpen is returned by Open when the previous entry is not committed.
	ErrEntryOpen = errors.New("memory entry already open")
	// ErrNoOpenEntry is returned when an operation needs an open entry.
	ErrNoOpenEntry = errors.New("no open memory entry")
	// ErrInvalidScratchpad is returned by Commit for keys outside the kind's key set.
	ErrInvalidScratchpad = errors.New("invalid scratchpad key")
)

var scratchpadKeys = map[state.Kind][]string{
	state.KindInput:      {"input"},
	state.KindGenerative: {"response", "template"},
	state.KindTool:       {"tool_input", "tool_result", "tool_error", "tool_call_id", "response"},
}

// AllowedKeys returns the scratchpad keys permitted for kind.
func AllowedKeys(kind state.Kind) []string { return slices.Clone(scratchpadKeys[kind]) }

// Entry is one step of the transcript. Sealed entries are never mutated.
type Entry struct {
	Seq        int
	State      string
	Kind       state.Kind
	Intent     string
	Tool       string
	Scratchpad map[string]any
	CreatedAt  time.Time
}

func (e Entry) clone() Entry {
	cp := e
	cp.Scratchpad = cloneScratchpad(e.Scratchpad)
	return cp
}

// Row converts the entry to its durable form.
func (e Entry) Row(agentID string) core.MemoryRow {
	return core.MemoryRow{
		AgentID:    agentID,
		Seq:        e.Seq,
		State:      e.State,
		Kind:       string(e.Kind),
		Intent:     e.Intent,
		Tool:       e.Tool,
		Scratchpad: cloneScratchpad(e.Scratchpad),
		CreatedAt:  e.CreatedAt,
	}
}

// EntryFromRow converts a durable row back into an entry.
func EntryFromRow(r core.MemoryRow) Entry {
	return Entry{
		Seq:        r.Seq,
		State:      r.State,
		Kind:       state.Kind(r.Kind),
		Intent:     r.Intent,
		Tool:       r.Tool,
		Scratchpad: cloneScratchpad(r.Scratchpad),
		CreatedAt:  r.CreatedAt,
	}
}

// Memory is the transcript of one agent. It is safe for concurrent use,
// although an agent only touches it from its step loop.
type Memory struct {
	agentID string
	sink    core.MemorySink
	now     func() time.Time

	mu      sync.RWMutex
	entries []Entry
	current *Entry
}

// New creates an empty transcript for agentID. A nil sink keeps the
// transcript in process only.
func New(agentID string, sink core.MemorySink) *Memory {
	return &Memory{agentID: agentID, sink: sink, now: time.Now}
}

// AgentID returns the owning agent id.
func (m *Memory) AgentID() string { return m.agentID }

// Open starts a new entry.
func (m *Memory) Open(stateName string, kind state.Kind, intent, tool string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return fmt.Errorf("%w: %s", ErrEntryOpen, m.current.State)
	}

	m.current = &Entry{
		State:      stateName,
		Kind:       kind,
		Intent:     intent,
		Tool:       tool,
		Scratchpad: map[string]any{},
	}

	return nil
}

// UpdateScratchpad merges delta into the open entry.
func (m *Memory) UpdateScratchpad(delta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoOpenEntry
	}

	for k, v := range delta {
		m.current.Scratchpad[k] = v
	}

	return nil
}

// SetIntent replaces the intent of the open entry, for example once the
// transition out of a suspended tool step is known.
func (m *Memory) SetIntent(intent string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return ErrNoOpenEntry
	}

	m.current.Intent = intent

	return nil
}

// Commit seals the open entry, appends it and writes it to the sink. An
// entry with scratchpad keys outside its kind's key set is rejected and
// stays open. A sink failure is reported as *core.SinkWriteError after the
// entry has been appended locally.
func (m *Memory) Commit(ctx context.Context) (Entry, error) {
	m.mu.Lock()

	if m.current == nil {
		m.mu.Unlock()
		return Entry{}, ErrNoOpenEntry
	}

	if err := validate(*m.current); err != nil {
		m.mu.Unlock()
		return Entry{}, err
	}

	e := *m.current
	e.Seq = len(m.entries) + 1
	e.CreatedAt = m.now().UTC()
	e.Scratchpad = cloneScratchpad(e.Scratchpad)

	m.entries = append(m.entries, e)
	m.current = nil

	m.mu.Unlock()

	if m.sink == nil {
		return e.clone(), nil
	}

	if err := m.sink.Append(ctx, e.Row(m.agentID)); err != nil {
		return e.clone(), &core.SinkWriteError{AgentID: m.agentID, State: e.State, Err: err}
	}

	return e.clone(), nil
}

// Push opens and commits an entry in one call.
func (m *Memory) Push(ctx context.Context, e Entry) (Entry, error) {
	if err := m.Open(e.State, e.Kind, e.Intent, e.Tool); err != nil {
		return Entry{}, err
	}

	if err := m.UpdateScratchpad(e.Scratchpad); err != nil {
		return Entry{}, err
	}

	committed, err := m.Commit(ctx)

	var sinkErr *core.SinkWriteError
	if err != nil && !errors.As(err, &sinkErr) {
		m.Discard()
	}

	return committed, err
}

// Discard drops the open entry, if any.
func (m *Memory) Discard() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = nil
}

// Peek returns the last sealed entry.
func (m *Memory) Peek() (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return Entry{}, false
	}

	return m.entries[len(m.entries)-1].clone(), true
}

// Pop removes and returns the last sealed entry from the in-process stack.
// Rows already written to the sink are not affected.
func (m *Memory) Pop() (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.entries) == 0 {
		return Entry{}, false
	}

	e := m.entries[len(m.entries)-1]
	m.entries = m.entries[:len(m.entries)-1]

	return e, true
}

// Current returns a copy of the open entry.
func (m *Memory) Current() (Entry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return Entry{}, false
	}

	return m.current.clone(), true
}

// Entries returns copies of the sealed entries in commit order.
func (m *Memory) Entries() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Entry, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.clone()
	}

	return out
}

// Len returns the number of sealed entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Rows returns the sealed entries and the open entry in durable form.
func (m *Memory) Rows() ([]core.MemoryRow, *core.MemoryRow) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]core.MemoryRow, len(m.entries))
	for i, e := range m.entries {
		rows[i] = e.Row(m.agentID)
	}

	if m.current == nil {
		return rows, nil
	}

	pending := m.current.Row(m.agentID)

	return rows, &pending
}

// Restore replaces the transcript with rows and an optional open entry. It
// does not write to the sink.
func (m *Memory) Restore(rows []core.MemoryRow, pending *core.MemoryRow) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := slices.Clone(rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	m.entries = make([]Entry, len(sorted))
	for i, r := range sorted {
		m.entries[i] = EntryFromRow(r)
	}

	m.current = nil
	if pending != nil {
		e := EntryFromRow(*pending)
		if e.Scratchpad == nil {
			e.Scratchpad = map[string]any{}
		}
		m.current = &e
	}
}

func validate(e Entry) error {
	allowed, ok := scratchpadKeys[e.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown state kind %q", ErrInvalidScratchpad, e.Kind)
	}

	for k := range e.Scratchpad {
		if !slices.Contains(allowed, k) {
			return fmt.Errorf("%w: %q not allowed for %s state %q", ErrInvalidScratchpad, k, e.Kind, e.State)
		}
	}

	return nil
}

func cloneScratchpad(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	row := core.MemoryRow{Scratchpad: m}
	return row.Clone().Scratchpad
}
