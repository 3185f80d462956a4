package editor

import (
	"encoding/json"

	"github.com/haivivi/chronicle/pkg/completion"
	"github.com/haivivi/chronicle/pkg/document"
)

// DefaultErrorMessage is recorded when a failure carries no message.
const DefaultErrorMessage = "An unexpected error occurred."

// State is the lifecycle state of a Machine.
type State int

const (
	StateIdle State = iota
	StateGenerating
	StateReviewing
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateReviewing:
		return "reviewing"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler. Unknown names decode as
// StateIdle.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "generating":
		*s = StateGenerating
	case "reviewing":
		*s = StateReviewing
	case "error":
		*s = StateError
	default:
		*s = StateIdle
	}
	return nil
}

// Range is a half-open interval [From, To) of document positions.
type Range struct {
	From int `json:"from" yaml:"from"`
	To   int `json:"to" yaml:"to"`
}

// Len returns To - From.
func (r Range) Len() int {
	return r.To - r.From
}

// Context is the per-generation data carried by the Machine.
type Context struct {
	// Error is the last failure message. It is set only in StateError.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	Candidates    []string `json:"candidates,omitempty" yaml:"candidates,omitempty"`
	SelectedIndex int      `json:"selected_index" yaml:"selected_index"`

	// Range is the document interval occupied by the selected candidate.
	Range *Range `json:"range,omitempty" yaml:"range,omitempty"`
}

// Clone returns a deep copy of c.
func (c Context) Clone() Context {
	v := c
	if c.Candidates != nil {
		v.Candidates = append([]string(nil), c.Candidates...)
	}
	if c.Range != nil {
		r := *c.Range
		v.Range = &r
	}
	return v
}

// Selected returns the selected candidate, if any.
func (c Context) Selected() (string, bool) {
	if c.SelectedIndex < 0 || c.SelectedIndex >= len(c.Candidates) {
		return "", false
	}
	return c.Candidates[c.SelectedIndex], true
}

// Event is an input to Machine.Send.
type Event interface {
	isEvent()
}

type (
	// Generate starts a generation with the given mode.
	Generate struct{ Mode completion.Mode }

	// Stop discards the current generation or review.
	Stop struct{}

	// Success installs fetched candidates. Range covers candidate 0 as it
	// was typed into the document.
	Success struct {
		Candidates []string
		Range      Range
	}

	// Failure records a failed generation.
	Failure struct{ Message string }

	// Retry starts a fresh generation from the error state, reusing the last
	// mode.
	Retry struct{}

	NextVariant struct{}
	PrevVariant struct{}

	// Accept commits the selected candidate.
	Accept struct{}
)

func (Generate) isEvent()    {}
func (Stop) isEvent()        {}
func (Success) isEvent()     {}
func (Failure) isEvent()     {}
func (Retry) isEvent()       {}
func (NextVariant) isEvent() {}
func (PrevVariant) isEvent() {}
func (Accept) isEvent()      {}

// Machine is the generation lifecycle state machine. Events that are not
// valid in the current state are ignored.
//
// Machine is not safe for concurrent use; the Orchestrator owns it on a
// single goroutine.
type Machine struct {
	state State
	ctx   Context
	mode  completion.Mode
}

// NewMachine returns a Machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{mode: completion.ModeContinue}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Context returns a copy of the current context.
func (m *Machine) Context() Context {
	return m.ctx.Clone()
}

// Mode returns the mode of the most recent Generate.
func (m *Machine) Mode() completion.Mode {
	return m.mode
}

// Send applies ev and reports whether it caused a transition.
func (m *Machine) Send(ev Event) bool {
	switch m.state {
	case StateIdle:
		if e, ok := ev.(Generate); ok {
			m.begin(e.Mode)
			m.ctx.Range = nil
			return true
		}

	case StateGenerating:
		switch e := ev.(type) {
		case Stop:
			m.reset(StateIdle)
			return true
		case Success:
			r := e.Range
			m.state = StateReviewing
			m.ctx = Context{
				Candidates: append([]string(nil), e.Candidates...),
				Range:      &r,
			}
			return true
		case Failure:
			msg := e.Message
			if msg == "" {
				msg = DefaultErrorMessage
			}
			m.state = StateError
			m.ctx = Context{Error: msg}
			return true
		}

	case StateReviewing:
		switch e := ev.(type) {
		case Generate:
			// The outgoing range is kept until Success replaces it.
			m.begin(e.Mode)
			return true
		case Accept, Stop:
			m.reset(StateIdle)
			return true
		case NextVariant:
			return m.cycle(1)
		case PrevVariant:
			return m.cycle(-1)
		}

	case StateError:
		switch e := ev.(type) {
		case Generate:
			m.mode = e.Mode
			m.reset(StateGenerating)
			return true
		case Retry:
			m.reset(StateGenerating)
			return true
		case Stop:
			m.reset(StateIdle)
			return true
		}
	}
	return false
}

func (m *Machine) begin(mode completion.Mode) {
	m.state = StateGenerating
	m.mode = mode
	m.ctx.Candidates = nil
	m.ctx.SelectedIndex = 0
	m.ctx.Error = ""
}

func (m *Machine) reset(s State) {
	m.state = s
	m.ctx = Context{}
}

func (m *Machine) cycle(step int) bool {
	n := len(m.ctx.Candidates)
	if n == 0 {
		return false
	}
	m.ctx.SelectedIndex = ((m.ctx.SelectedIndex+step)%n + n) % n
	if m.ctx.Range != nil {
		sel := m.ctx.Candidates[m.ctx.SelectedIndex]
		m.ctx.Range = &Range{From: m.ctx.Range.From, To: m.ctx.Range.From + document.Len(sel)}
	}
	return true
}
