// Package nodeid encodes and decodes the opaque row identifiers shared by
// NodeIDs and pagination cursors.
//
// The payload is a JSON object {"table_name": ..., "values": {pk: value, ...}}
// rendered the way PostgreSQL's json_build_object renders text, then base64
// encoded. SQL-side and Go-side encodings of the same row are byte-identical.
package nodeid

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"pg-graphql/internal/introspection"
	"pg-graphql/internal/sqltype"
)

// ErrBadIdentifier reports a NodeID or cursor that cannot be decoded.
var ErrBadIdentifier = errors.New("bad identifier")

// Value is one primary key column and its value.
type Value struct {
	Column string
	Value  interface{}
}

// Identifier names a single row: its table and ordered primary key values.
type Identifier struct {
	TableName string
	Values    []Value
}

// New builds an identifier from alternating column/value pairs.
func New(tableName string, pairs ...interface{}) Identifier {
	id := Identifier{TableName: tableName}
	for i := 0; i+1 < len(pairs); i += 2 {
		col, _ := pairs[i].(string)
		id.Values = append(id.Values, Value{Column: col, Value: pairs[i+1]})
	}
	return id
}

// Get returns the value for a primary key column.
func (id Identifier) Get(column string) (interface{}, bool) {
	for _, v := range id.Values {
		if v.Column == column {
			return v.Value, true
		}
	}
	return nil, false
}

// Equal reports whether both identifiers carry the same table and values in the same order.
func (id Identifier) Equal(other Identifier) bool {
	a, errA := id.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// MarshalJSON renders the identifier in json_build_object text form.
func (id Identifier) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"table_name" : `)
	if err := writeJSON(&buf, id.TableName); err != nil {
		return nil, err
	}
	buf.WriteString(`, "values" : {`)
	for i, v := range id.Values {
		if i > 0 {
			buf.WriteString(", ")
		}
		if err := writeJSON(&buf, v.Column); err != nil {
			return nil, err
		}
		buf.WriteString(" : ")
		if err := writeJSON(&buf, v.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// UnmarshalJSON parses an identifier payload, keeping primary key order.
func (id *Identifier) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := expectDelim(dec, '{'); err != nil {
		return err
	}
	var out Identifier
	var sawValues bool
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return err
		}
		switch key {
		case "table_name":
			if err := dec.Decode(&out.TableName); err != nil {
				return err
			}
		case "values":
			values, err := readOrderedValues(dec)
			if err != nil {
				return err
			}
			out.Values = values
			sawValues = true
		default:
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return err
			}
		}
	}
	if err := expectDelim(dec, '}'); err != nil {
		return err
	}
	if out.TableName == "" {
		return errors.New("missing table_name")
	}
	if !sawValues || len(out.Values) == 0 {
		return errors.New("missing primary key values")
	}
	*id = out
	return nil
}

// Encode returns the opaque string form of an identifier.
func Encode(id Identifier) (string, error) {
	data, err := id.MarshalJSON()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses an opaque identifier string. Failures wrap ErrBadIdentifier.
func Decode(raw string) (Identifier, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrBadIdentifier, err)
	}
	var id Identifier
	if err := json.Unmarshal(data, &id); err != nil {
		return Identifier{}, fmt.Errorf("%w: %v", ErrBadIdentifier, err)
	}
	return id, nil
}

func writeJSON(buf *bytes.Buffer, v interface{}) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q", want)
	}
	return nil
}

func readKey(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	key, ok := tok.(string)
	if !ok {
		return "", errors.New("expected object key")
	}
	return key, nil
}

func readOrderedValues(dec *json.Decoder) ([]Value, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	var values []Value
	for dec.More() {
		key, err := readKey(dec)
		if err != nil {
			return nil, err
		}
		var v interface{}
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		values = append(values, Value{Column: key, Value: v})
	}
	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	return values, nil
}

// ParsePKValue converts a decoded JSON value into the Go type expected by a PK column.
func ParsePKValue(col introspection.Column, raw interface{}) (interface{}, error) {
	if raw == nil {
		return nil, fmt.Errorf("missing primary key value for %s", col.Name)
	}

	switch sqltype.MapToGraphQL(col.DataType) {
	case sqltype.TypeInt:
		switch v := raw.(type) {
		case json.Number:
			parsed, err := v.Int64()
			if err != nil {
				return nil, fmt.Errorf("invalid integer value for %s", col.Name)
			}
			return parsed, nil
		case float64:
			if v != math.Trunc(v) || v > math.MaxInt64 || v < math.MinInt64 {
				return nil, fmt.Errorf("invalid integer value for %s", col.Name)
			}
			return int64(v), nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case string:
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid integer value for %s", col.Name)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("invalid integer value for %s", col.Name)
		}
	case sqltype.TypeFloat:
		switch v := raw.(type) {
		case json.Number:
			// numeric keys keep their exact text
			return v.String(), nil
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case string:
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				return nil, fmt.Errorf("invalid numeric value for %s", col.Name)
			}
			return v, nil
		default:
			return nil, fmt.Errorf("invalid numeric value for %s", col.Name)
		}
	case sqltype.TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			parsed, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("invalid boolean value for %s", col.Name)
			}
			return parsed, nil
		default:
			return nil, fmt.Errorf("invalid boolean value for %s", col.Name)
		}
	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case json.Number:
			return v.String(), nil
		case []byte:
			return string(v), nil
		default:
			return nil, fmt.Errorf("invalid value for %s", col.Name)
		}
	}
}

// PKArgs validates that an identifier belongs to table and returns its
// primary key values coerced for use as SQL arguments, in primary key order.
func PKArgs(table *introspection.Table, id Identifier) ([]interface{}, error) {
	pkCols := table.PrimaryKeyColumns()
	if len(pkCols) == 0 {
		return nil, fmt.Errorf("table %s has no primary key", table.Name)
	}
	if len(id.Values) != len(pkCols) {
		return nil, fmt.Errorf("%w: expected %d primary key values, got %d", ErrBadIdentifier, len(pkCols), len(id.Values))
	}
	args := make([]interface{}, len(pkCols))
	for i, col := range pkCols {
		raw, ok := id.Get(col.Name)
		if !ok {
			return nil, fmt.Errorf("%w: missing primary key column %s", ErrBadIdentifier, col.Name)
		}
		parsed, err := ParsePKValue(col, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadIdentifier, err)
		}
		args[i] = parsed
	}
	return args, nil
}
