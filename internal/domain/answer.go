package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// AnswerKind tags which field of an Answer carries the value.
type AnswerKind uint8

const (
	AnswerNone AnswerKind = iota
	AnswerText
	AnswerBool
	AnswerList
)

// Answer is a string, boolean or string list value. It is used both for the
// correct answer of a question and for what a member submitted. The zero
// value means "not answered".
type Answer struct {
	Kind AnswerKind
	Text string
	Bool bool
	List []string
}

// TextAnswer wraps a single string value.
func TextAnswer(s string) Answer {
	return Answer{Kind: AnswerText, Text: s}
}

// BoolAnswer wraps a boolean value.
func BoolAnswer(b bool) Answer {
	return Answer{Kind: AnswerBool, Bool: b}
}

// ListAnswer wraps an ordered list of strings.
func ListAnswer(v ...string) Answer {
	return Answer{Kind: AnswerList, List: v}
}

// IsZero reports whether the answer is absent.
func (a Answer) IsZero() bool {
	return a.Kind == AnswerNone
}

func (a Answer) String() string {
	return fmt.Sprint(a.value())
}

// Equal reports exact equality: same kind and same value.
func (a Answer) Equal(b Answer) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerText:
		return a.Text == b.Text
	case AnswerBool:
		return a.Bool == b.Bool
	case AnswerList:
		if len(a.List) != len(b.List) {
			return false
		}
		for i := range a.List {
			if a.List[i] != b.List[i] {
				return false
			}
		}
		return true
	}
	return true
}

// Alternatives lists the accepted strings of a text or list answer.
func (a Answer) Alternatives() []string {
	switch a.Kind {
	case AnswerText:
		return []string{a.Text}
	case AnswerList:
		return a.List
	}
	return nil
}

func (a Answer) value() any {
	switch a.Kind {
	case AnswerText:
		return a.Text
	case AnswerBool:
		return a.Bool
	case AnswerList:
		if a.List == nil {
			return []string{}
		}
		return a.List
	}
	return nil
}

func (a Answer) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.value())
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = Answer{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return a.set(raw)
}

func (a *Answer) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return a.set(raw)
}

func (a *Answer) set(raw any) error {
	switch v := raw.(type) {
	case nil:
		*a = Answer{}
	case string:
		*a = TextAnswer(v)
	case bool:
		*a = BoolAnswer(v)
	case []any:
		list := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("answer list item %v is not a string", item)
			}
			list = append(list, s)
		}
		*a = ListAnswer(list...)
	default:
		return fmt.Errorf("unsupported answer value %v (%T)", raw, raw)
	}
	return nil
}
