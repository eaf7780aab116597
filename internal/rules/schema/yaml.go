package schema

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/dshills/rulebook/internal/rules/rule"
)

// fileSchema is the YAML shape of a schema file.
type fileSchema struct {
	Rules []fileDescriptor `yaml:"rules"`
}

type fileDescriptor struct {
	Name        string   `yaml:"name"`
	Kind        string   `yaml:"kind"`
	Default     any      `yaml:"default"`
	Description string   `yaml:"description"`
	Categories  []string `yaml:"categories"`
	Options     []any    `yaml:"options"`
	Strict      bool     `yaml:"strict"`
	Min         *int64   `yaml:"min"`
	Max         *int64   `yaml:"max"`
	Pattern     string   `yaml:"pattern"`
	MaxLength   int      `yaml:"maxLength"`
	ExtraInfo   []string `yaml:"extraInfo"`
}

// LoadYAML reads descriptors from a YAML document of the form
//
//	rules:
//	  - name: fillLimit
//	    kind: int
//	    default: 32768
//	    categories: [creative]
//	    options: [32768, 250000]
//	    min: 1
func LoadYAML(r io.Reader) ([]Descriptor, error) {
	var doc fileSchema
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("decoding schema: %w", err)
	}

	out := make([]Descriptor, 0, len(doc.Rules))
	for i, fd := range doc.Rules {
		d, err := fd.descriptor()
		if err != nil {
			return nil, fmt.Errorf("schema rule %d (%s): %w", i, fd.Name, err)
		}
		out = append(out, d)
	}
	return out, nil
}

// LoadFile reads descriptors from a YAML file.
func LoadFile(path string) ([]Descriptor, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening schema %s: %w", path, err)
	}
	defer f.Close()
	return LoadYAML(f)
}

func (fd fileDescriptor) descriptor() (Descriptor, error) {
	kind, err := rule.ParseKind(fd.Kind)
	if err != nil {
		return Descriptor{}, err
	}
	def, err := scalar(fd.Default)
	if err != nil {
		return Descriptor{}, fmt.Errorf("default: %w", err)
	}

	opts := make([]string, 0, len(fd.Options))
	for _, o := range fd.Options {
		s, err := scalar(o)
		if err != nil {
			return Descriptor{}, fmt.Errorf("options: %w", err)
		}
		opts = append(opts, s)
	}

	return Descriptor{
		Name:        fd.Name,
		Kind:        kind,
		Default:     def,
		Description: fd.Description,
		Categories:  fd.Categories,
		Options:     opts,
		Strict:      fd.Strict,
		Min:         fd.Min,
		Max:         fd.Max,
		Pattern:     fd.Pattern,
		MaxLength:   fd.MaxLength,
		ExtraInfo:   fd.ExtraInfo,
	}, nil
}

// scalar renders a decoded YAML scalar in canonical rule form.
func scalar(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
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
