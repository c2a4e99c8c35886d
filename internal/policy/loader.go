package policy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a policy document.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

var schema = newSchemaValidator()

func newSchemaValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report document keys rather than Go field names.
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("yaml"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported policy format %q (want .yaml, .yml, .toml or .json)", filepath.Ext(path))
	}
}

// Load reads, validates and compiles the policy document at path.
func Load(path string) (*Policy, error) {
	return LoadWithOptions(path, DefaultOptions())
}

// LoadWithOptions is Load with explicit path-resolution options.
func LoadWithOptions(path string, opts Options) (*Policy, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Source: path, Err: err}
	}
	p, err := ParseWithOptions(data, format, opts)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Source = path
		}
		return nil, err
	}
	return p, nil
}

// Parse decodes and compiles an in-memory policy document.
func Parse(data []byte, format Format) (*Policy, error) {
	return ParseWithOptions(data, format, DefaultOptions())
}

// ParseWithOptions is Parse with explicit path-resolution options.
func ParseWithOptions(data []byte, format Format, opts Options) (*Policy, error) {
	doc, err := Decode(data, format)
	if err != nil {
		return nil, err
	}
	return Compile(doc, opts)
}

// Decode strictly decodes and schema-validates a document. Unknown keys,
// mistyped values and missing required fields are all errors.
func Decode(data []byte, format Format) (*Document, error) {
	doc := &Document{}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(doc); err != nil {
			return nil, &LoadError{Err: fmt.Errorf("decode yaml: %w", err)}
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), doc)
		if err != nil {
			return nil, &LoadError{Err: fmt.Errorf("decode toml: %w", err)}
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			return nil, &LoadError{Err: fmt.Errorf("decode toml: unknown keys: %s", strings.Join(keys, ", "))}
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(doc); err != nil {
			return nil, &LoadError{Err: fmt.Errorf("decode json: %w", err)}
		}
	default:
		return nil, &LoadError{Err: fmt.Errorf("unsupported policy format %q", format)}
	}

	if err := validateDocument(doc); err != nil {
		return nil, &LoadError{Err: err}
	}
	return doc, nil
}

func validateDocument(doc *Document) error {
	err := schema.Struct(doc)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Document.")
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "required_without":
			msgs = append(msgs, fmt.Sprintf("%s is required unless %s is set", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q", field, fe.Tag()))
		}
	}
	sort.Strings(msgs)
	return fmt.Errorf("invalid policy: %s", strings.Join(msgs, "; "))
}
