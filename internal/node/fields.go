package node

import (
	"bytes"
	"encoding/json"
	"strconv"
)

var jsonNull = []byte("null")

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), jsonNull)
}

// fieldSet reads fields out of a JSON object and accumulates one validity
// flag instead of failing on the first bad field.
type fieldSet struct {
	fields map[string]json.RawMessage
	valid  bool
}

func newFieldSet(raw json.RawMessage) *fieldSet {
	f := &fieldSet{valid: true}
	if isNull(raw) || json.Unmarshal(raw, &f.fields) != nil || f.fields == nil {
		f.valid = false
	}
	return f
}

func (f *fieldSet) Valid() bool { return f.valid }

func (f *fieldSet) raw(name string, required bool) (json.RawMessage, bool) {
	v, ok := f.fields[name]
	if !ok {
		if required {
			f.valid = false
		}
		return nil, false
	}
	return v, true
}

// lookupString reports a string field without touching the validity flag.
func (f *fieldSet) lookupString(name string) (string, bool) {
	v, ok := f.fields[name]
	if !ok {
		return "", false
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return "", false
	}
	return s, true
}

func (f *fieldSet) String(name string, required bool) string {
	v, ok := f.raw(name, required)
	if !ok {
		return ""
	}
	if isNull(v) {
		if required {
			f.valid = false
		}
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		f.valid = false
	}
	return s
}

func (f *fieldSet) Int64(name string, required bool) int64 {
	v, ok := f.raw(name, required)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(string(bytes.TrimSpace(v)), 10, 64)
	if err != nil {
		f.valid = false
	}
	return n
}

func (f *fieldSet) Uint64(name string, required bool) uint64 {
	v, ok := f.raw(name, required)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(string(bytes.TrimSpace(v)), 10, 64)
	if err != nil {
		f.valid = false
	}
	return n
}

// Money reads a money field from its JSON text, string or number, under the given scale.
func (f *fieldSet) Money(name string, scale int64) int64 {
	v, ok := f.raw(name, true)
	if !ok {
		return 0
	}
	n, ok := parseMoneyRaw(v, scale)
	if !ok {
		f.valid = false
	}
	return n
}

// parseMoneyRaw accepts either a JSON string or a bare JSON number token.
func parseMoneyRaw(raw json.RawMessage, scale int64) (int64, bool) {
	text := bytes.TrimSpace(raw)
	if len(text) > 0 && text[0] == '"' {
		var s string
		if json.Unmarshal(text, &s) != nil {
			return 0, false
		}
		return ParseMoney(s, scale)
	}
	return ParseMoney(string(text), scale)
}
