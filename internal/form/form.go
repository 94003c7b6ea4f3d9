// Package form runs multi-step text input: one prompt per field, each
// answer validated before the next prompt. Typing the cancel sentinel at
// any step discards everything gathered so far.
package form

import (
	"fmt"
	"strings"

	"github.com/samber/mo"
)

// CancelSentinel aborts the current form.
const CancelSentinel = "*"

// IsCancel reports whether an answer aborts the form.
func IsCancel(raw string) bool {
	s := strings.TrimSpace(raw)
	return s == CancelSentinel || s == "/cancel" || strings.HasPrefix(s, "/cancel@")
}

// Values holds the validated answers keyed by field.
type Values map[string]string

// Parser validates one answer. It receives the answers given so far and
// returns the canonical value to store.
type Parser func(raw string, values Values) mo.Result[string]

// Field is one step of a form.
type Field struct {
	Key    string
	Prompt string
	// Options are suggested answers shown as buttons.
	Options []string
	Parse   Parser
	// Skip omits the field based on earlier answers.
	Skip func(values Values) bool
}

// Form is an ordered list of fields.
type Form struct {
	Name   string
	Fields []Field
}

// State is the outcome of one step.
type State int

// Step states.
const (
	Prompting State = iota
	Invalid
	Cancelled
	Completed
)

func (s State) String() string {
	switch s {
	case Prompting:
		return "prompting"
	case Invalid:
		return "invalid"
	case Cancelled:
		return "cancelled"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Step tells the caller what to show next.
type Step struct {
	State State
	// Field is the field being asked for when Prompting or Invalid.
	Field *Field
	// Err is the validation error when Invalid.
	Err error
	// Values holds the answers when Completed.
	Values Values
}

// Session walks one user through a form.
type Session struct {
	form   *Form
	values Values
	index  int
}

// NewSession starts a form. The returned step asks for the first field.
func NewSession(f *Form) (*Session, Step) {
	s := &Session{form: f, values: Values{}, index: -1}
	return s, s.advance()
}

// Form returns the form being filled.
func (s *Session) Form() *Form {
	return s.form
}

// Current returns the field awaiting an answer, or nil when done.
func (s *Session) Current() *Field {
	if s.index < 0 || s.index >= len(s.form.Fields) {
		return nil
	}
	return &s.form.Fields[s.index]
}

// Feed submits an answer to the current field.
func (s *Session) Feed(raw string) Step {
	if IsCancel(raw) {
		s.values = Values{}
		s.index = len(s.form.Fields)
		return Step{State: Cancelled}
	}

	field := s.Current()
	if field == nil {
		return Step{State: Completed, Values: s.values}
	}

	value, err := field.Parse(strings.TrimSpace(raw), s.values).Get()
	if err != nil {
		return Step{State: Invalid, Field: field, Err: err}
	}
	s.values[field.Key] = value
	return s.advance()
}

// advance moves to the next field that is not skipped.
func (s *Session) advance() Step {
	for s.index++; s.index < len(s.form.Fields); s.index++ {
		f := &s.form.Fields[s.index]
		if f.Skip != nil && f.Skip(s.values) {
			continue
		}
		return Step{State: Prompting, Field: f}
	}
	return Step{State: Completed, Values: s.values}
}

// Text adapts a validating function into a Parser.
func Text(fn func(raw string) (string, error)) Parser {
	return func(raw string, _ Values) mo.Result[string] {
		v, err := fn(raw)
		return mo.TupleToResult(v, err)
	}
}

// Choice accepts one of the given options, compared without surrounding spaces.
func Choice(options ...string) Parser {
	return func(raw string, _ Values) mo.Result[string] {
		for _, o := range options {
			if raw == o {
				return mo.Ok(o)
			}
		}
		return mo.Err[string](fmt.Errorf("請從 %s 中選擇", strings.Join(options, "、")))
	}
}

// Any accepts every answer, including an empty one.
func Any() Parser {
	return func(raw string, _ Values) mo.Result[string] {
		return mo.Ok(raw)
	}
}
