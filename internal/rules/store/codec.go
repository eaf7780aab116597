package store

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

type codec interface {
	decode(data []byte) (*Snapshot, error)
	encode(snap *Snapshot) ([]byte, error)
}

func codecFor(f Format) codec {
	switch f {
	case FormatYAML:
		return yamlCodec{}
	case FormatJSON:
		return jsonCodec{}
	default:
		return tomlCodec{}
	}
}

// document is the shared TOML/YAML shape.
type document struct {
	Locked bool           `toml:"locked" yaml:"locked"`
	Rules  map[string]any `toml:"rules" yaml:"rules"`
}

type encodedDocument struct {
	Locked bool              `toml:"locked" yaml:"locked"`
	Rules  map[string]string `toml:"rules" yaml:"rules"`
}

func (d document) snapshot() (*Snapshot, error) {
	snap := NewSnapshot()
	snap.Locked = d.Locked
	for name, raw := range d.Rules {
		v, err := scalar(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
		snap.Rules[name] = v
	}
	return snap, nil
}

func encoded(snap *Snapshot) encodedDocument {
	rules := snap.Rules
	if rules == nil {
		rules = map[string]string{}
	}
	return encodedDocument{Locked: snap.Locked, Rules: rules}
}

// scalar renders a decoded value in canonical rule form. Hand-edited files
// may write numbers and booleans unquoted.
func scalar(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case uint64:
		return strconv.FormatUint(t, 10), nil
	default:
		return "", fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

type tomlCodec struct{}

func (tomlCodec) decode(data []byte) (*Snapshot, error) {
	var doc document
	if err := toml.Unmarshal(data, &doc); err != nil {
		pe := &ParseError{Message: err.Error(), Err: err}
		if de, ok := err.(*toml.DecodeError); ok {
			row, col := de.Position()
			pe.Message = fmt.Sprintf("line %d, column %d: %s", row, col, de.Error())
		}
		return nil, pe
	}
	return doc.snapshot()
}

func (tomlCodec) encode(snap *Snapshot) ([]byte, error) {
	return toml.Marshal(encoded(snap))
}

type yamlCodec struct{}

func (yamlCodec) decode(data []byte) (*Snapshot, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.snapshot()
}

func (yamlCodec) encode(snap *Snapshot) ([]byte, error) {
	return yaml.Marshal(encoded(snap))
}

type jsonCodec struct{}

func (jsonCodec) decode(data []byte) (*Snapshot, error) {
	snap := NewSnapshot()
	if len(strings.TrimSpace(string(data))) == 0 {
		return snap, nil
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return nil, fmt.Errorf("expected a JSON object")
	}
	snap.Locked = doc.Get("locked").Bool()

	rules := doc.Get("rules")
	if rules.Exists() && !rules.IsObject() {
		return nil, fmt.Errorf("rules: expected an object")
	}

	var err error
	rules.ForEach(func(key, value gjson.Result) bool {
		switch value.Type {
		case gjson.String:
			snap.Rules[key.String()] = value.Str
		case gjson.Number, gjson.True, gjson.False:
			snap.Rules[key.String()] = value.Raw
		default:
			err = fmt.Errorf("rule %s: unsupported value %s", key.String(), value.Raw)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (jsonCodec) encode(snap *Snapshot) ([]byte, error) {
	data, err := sjson.SetBytes([]byte(`{}`), "locked", snap.Locked)
	if err != nil {
		return nil, err
	}
	if data, err = sjson.SetRawBytes(data, "rules", []byte(`{}`)); err != nil {
		return nil, err
	}
	for _, name := range snap.Names() {
		data, err = sjson.SetBytes(data, "rules."+escapePath(name), snap.Rules[name])
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", name, err)
		}
	}
	return pretty.Pretty(data), nil
}

// escapePath escapes the gjson path metacharacters in a key.
func escapePath(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', ':', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
