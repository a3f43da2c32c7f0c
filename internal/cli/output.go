package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/perangel/livequery"
)

const (
	outputFormatJSON    = "json"
	outputFormatMsgpack = "msgpack"
)

type encoder interface {
	Encode(v interface{}) error
}

// record is the output form of a stream event.
type record struct {
	Type    livequery.EventType `json:"type" msgpack:"type"`
	Schema  string              `json:"schema" msgpack:"schema"`
	Table   string              `json:"table" msgpack:"table"`
	Initial *[]livequery.Row    `json:"initial,omitempty" msgpack:"initial,omitempty"`
	Old     livequery.Row       `json:"old,omitempty" msgpack:"old,omitempty"`
	New     livequery.Row       `json:"new,omitempty" msgpack:"new,omitempty"`
}

func newRecord(ev livequery.Event) *record {
	r := &record{
		Type:   ev.Type,
		Schema: ev.Query.Row.Schema,
		Table:  ev.Query.Row.Table,
		Old:    ev.Old,
		New:    ev.New,
	}
	if ev.Type == livequery.EventTypeInitial {
		rows := ev.Rows
		if rows == nil {
			rows = []livequery.Row{}
		}
		// a pointer keeps an empty snapshot in the output
		r.Initial = &rows
	}
	return r
}

func newEncoder(format string, w io.Writer) (encoder, error) {
	switch format {
	case outputFormatJSON:
		return json.NewEncoder(w), nil
	case outputFormatMsgpack:
		return &msgpackEncoder{enc: msgpack.NewEncoder(w)}, nil
	default:
		return nil, fmt.Errorf("'%s' is not a valid value for `--format`. Must be either `%s` or `%s`", format, outputFormatJSON, outputFormatMsgpack)
	}
}

// msgpackEncoder writes rows with native msgpack numbers. Rows carry
// json.Number, which msgpack would otherwise encode as a string.
type msgpackEncoder struct {
	enc *msgpack.Encoder
}

func (e *msgpackEncoder) Encode(v interface{}) error {
	if r, ok := v.(*record); ok {
		out := *r
		out.Old = nativeRow(r.Old)
		out.New = nativeRow(r.New)
		if r.Initial != nil {
			rows := make([]livequery.Row, len(*r.Initial))
			for i, row := range *r.Initial {
				rows[i] = nativeRow(row)
			}
			out.Initial = &rows
		}
		v = &out
	}
	return e.enc.Encode(v)
}

func nativeRow(row livequery.Row) livequery.Row {
	if row == nil {
		return nil
	}
	out := make(livequery.Row, len(row))
	for k, v := range row {
		out[k] = nativeValue(v)
	}
	return out
}

// nativeValue converts json.Number to int64 when it fits, to float64
// otherwise, and recurses into JSON arrays and objects.
func nativeValue(v interface{}) interface{} {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, e := range x {
			out[k] = nativeValue(e)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, e := range x {
			out[i] = nativeValue(e)
		}
		return out
	}
	return v
}
