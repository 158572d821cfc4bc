package ast

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ParseError wraps a YAML or structural error encountered while loading a
// workflow document, per the "Parse error" row in §7.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("parse %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Parse decodes a workflow document from raw YAML bytes.
func Parse(source []byte) (*Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(source, &w); err != nil {
		return nil, &ParseError{Err: err}
	}
	if result := Validate(&w); !result.Valid() {
		return nil, &ParseError{Err: result}
	}
	return &w, nil
}

// LoadFile loads and parses a workflow document from disk.
func LoadFile(path string) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{File: path, Err: err}
	}
	w, err := Parse(data)
	if err != nil {
		if pe, ok := err.(*ParseError); ok {
			pe.File = path
		}
		return nil, err
	}
	w.SourceFile = path
	return w, nil
}

// Serialize renders a workflow document back to YAML. Serialize(Parse(x))
// followed by Parse again must yield a structurally equal workflow — the
// round-trip guarantee from §6.
func Serialize(w *Workflow) ([]byte, error) {
	return yaml.Marshal(w)
}
