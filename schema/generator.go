package schema

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Generator 通过反射从 Go 类型生成 Schema。
//
// 支持的 jsonschema 标签选项（分号分隔）：
//   - required
//   - description=...
//   - enum=a|b|c
//   - minimum=0 / maximum=100
//   - minLength / maxLength / minItems / maxItems
//   - pattern=... / format=email
type Generator struct {
	visited map[reflect.Type]bool
}

// NewGenerator 创建生成器
func NewGenerator() *Generator {
	return &Generator{visited: make(map[reflect.Type]bool)}
}

// For 生成类型 T 的 Schema
func For[T any]() (*JSONSchema, error) {
	return NewGenerator().Generate(reflect.TypeOf((*T)(nil)).Elem())
}

// Generate 生成 Schema
func (g *Generator) Generate(t reflect.Type) (*JSONSchema, error) {
	g.visited = make(map[reflect.Type]bool)
	return g.generate(t)
}

func (g *Generator) generate(t reflect.Type) (*JSONSchema, error) {
	if t == nil {
		return nil, fmt.Errorf("cannot generate schema for nil type")
	}
	if t.Kind() == reflect.Pointer {
		return g.generate(t.Elem())
	}
	// 递归类型
	if g.visited[t] {
		return &JSONSchema{Type: TypeObject}, nil
	}

	switch t.Kind() {
	case reflect.String:
		return String(), nil
	case reflect.Bool:
		return Boolean(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer(), nil
	case reflect.Float32, reflect.Float64:
		return Number(), nil
	case reflect.Slice, reflect.Array:
		items, err := g.generate(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}
		return Array(items), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key: %s", t.Key().Kind())
		}
		value, err := g.generate(t.Elem())
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		s := Object()
		s.AdditionalProperties = &AdditionalProperties{Allowed: true, Schema: value}
		return s, nil
	case reflect.Struct:
		return g.generateStruct(t)
	case reflect.Interface:
		return &JSONSchema{}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.Kind())
	}
}

func (g *Generator) generateStruct(t reflect.Type) (*JSONSchema, error) {
	g.visited[t] = true
	defer func() { g.visited[t] = false }()

	s := Object()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}
		prop, err := g.generate(field.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field.Name, err)
		}
		opts := parseTag(field.Tag.Get("jsonschema"))
		applyOptions(prop, opts)
		_, required := opts["required"]
		s.AddProperty(name, prop, required)
	}
	return s, nil
}

func jsonFieldName(field reflect.StructField) string {
	tag := field.Tag.Get("json")
	name, _, _ := strings.Cut(tag, ",")
	if name == "" {
		return field.Name
	}
	return name
}

func parseTag(tag string) map[string]string {
	opts := make(map[string]string)
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		opts[strings.TrimSpace(k)] = v
	}
	return opts
}

func applyOptions(s *JSONSchema, opts map[string]string) {
	intOpt := func(key string, dst **int) {
		if v, ok := opts[key]; ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = &n
			}
		}
	}
	floatOpt := func(key string, dst **float64) {
		if v, ok := opts[key]; ok {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				*dst = &f
			}
		}
	}

	if v, ok := opts["description"]; ok {
		s.Description = v
	}
	if v, ok := opts["enum"]; ok {
		for _, e := range strings.Split(v, "|") {
			s.Enum = append(s.Enum, strings.TrimSpace(e))
		}
	}
	if v, ok := opts["pattern"]; ok {
		s.Pattern = v
	}
	if v, ok := opts["format"]; ok {
		s.Format = Format(v)
	}
	intOpt("minLength", &s.MinLength)
	intOpt("maxLength", &s.MaxLength)
	intOpt("minItems", &s.MinItems)
	intOpt("maxItems", &s.MaxItems)
	floatOpt("minimum", &s.Minimum)
	floatOpt("maximum", &s.Maximum)
}
