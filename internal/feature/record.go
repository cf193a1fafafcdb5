package feature

import (
	"encoding/json"
	"fmt"
)

// Record describes one function definition.
//
// Name and Cls are nil when absent. Args and Body serialize as arrays even
// when empty.
type Record struct {
	Name *string  `json:"name"`
	Args []string `json:"args"`
	Body []Kind   `json:"body"`
	Cls  *string  `json:"cls"`
}

// Serialize encodes r as the flat JSON string stored in the feature field.
func (r Record) Serialize() (string, error) {
	if r.Args == nil {
		r.Args = []string{}
	}
	if r.Body == nil {
		r.Body = []Kind{}
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("serialize record: %w", err)
	}
	return string(b), nil
}

// Parse decodes a string produced by Serialize.
func Parse(s string) (Record, error) {
	var r Record
	if err := json.Unmarshal([]byte(s), &r); err != nil {
		return Record{}, fmt.Errorf("parse record: %w", err)
	}
	if r.Args == nil {
		r.Args = []string{}
	}
	if r.Body == nil {
		r.Body = []Kind{}
	}
	return r, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
