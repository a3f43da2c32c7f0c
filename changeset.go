package livequery

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ChangeKind is the type for change kinds
type ChangeKind string

// ChangeKind constants
const (
	ChangeKindInsert ChangeKind = "insert"
	ChangeKindUpdate ChangeKind = "update"
	ChangeKindDelete ChangeKind = "delete"
)

var errUnknownChangeKind = errors.New("unknown change kind")

// ParseChangeKind parses a change kind from a string.
func ParseChangeKind(kind string) (ChangeKind, error) {
	switch strings.ToLower(kind) {
	case "insert":
		return ChangeKindInsert, nil
	case "update":
		return ChangeKindUpdate, nil
	case "delete":
		return ChangeKindDelete, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownChangeKind, kind)
	}
}

// Change is a row change notification as emitted by the database trigger.
// Old is nil for inserts, New is nil for deletes.
type Change struct {
	Kind   ChangeKind
	Schema string
	Table  string
	Old    Row
	New    Row
}

type changePayload struct {
	Op     string `json:"op"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Old    Row    `json:"old"`
	New    Row    `json:"new"`
}

// ParseChange decodes a notification payload. The payload is decoded exactly
// once.
func ParseChange(payload string) (*Change, error) {
	if payload == "" {
		return nil, errors.New("empty payload")
	}

	var p changePayload
	if err := unmarshalRow([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal change payload: %w", err)
	}

	kind, err := ParseChangeKind(p.Op)
	if err != nil {
		return nil, err
	}

	return &Change{
		Kind:   kind,
		Schema: p.Schema,
		Table:  p.Table,
		Old:    p.Old,
		New:    p.New,
	}, nil
}

// String implements Stringer to create a useful string representation of a Change.
func (c *Change) String() string {
	return fmt.Sprintf("{kind: %s, schema: %s, table: %s}", c.Kind, c.Schema, c.Table)
}

// unmarshalRow decodes JSON keeping numbers as json.Number, so bigint and
// numeric columns are not rounded through float64.
func unmarshalRow(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}
