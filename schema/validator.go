package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ValidationError 带路径的校验错误
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationErrors 多个校验错误
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (e *ValidationErrors) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Validator 按 Schema 校验 JSON
type Validator struct {
	formats map[Format]func(string) bool
}

// NewValidator 创建带内置格式的校验器
func NewValidator() *Validator {
	return &Validator{formats: map[Format]func(string) bool{
		FormatEmail: func(s string) bool {
			_, err := mail.ParseAddress(s)
			return err == nil
		},
		FormatURI: func(s string) bool {
			u, err := url.Parse(s)
			return err == nil && u.Scheme != ""
		},
		FormatUUID: func(s string) bool {
			_, err := uuid.Parse(s)
			return err == nil
		},
		FormatDateTime: func(s string) bool {
			_, err := time.Parse(time.RFC3339, s)
			return err == nil
		},
	}}
}

// Validate 校验原始 JSON
func (v *Validator) Validate(data []byte, s *JSONSchema) error {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return &ValidationErrors{Errors: []ValidationError{{Message: "invalid JSON: " + err.Error()}}}
	}
	return v.ValidateValue(value, s)
}

// ValidateValue 校验已解码的值
func (v *Validator) ValidateValue(value any, s *JSONSchema) error {
	if s == nil {
		return nil
	}
	var errs []ValidationError
	v.validate(value, s, "", &errs)
	if len(errs) > 0 {
		return &ValidationErrors{Errors: errs}
	}
	return nil
}

func (v *Validator) validate(value any, s *JSONSchema, path string, errs *[]ValidationError) {
	add := func(format string, args ...any) {
		*errs = append(*errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if len(s.Enum) > 0 && !containsValue(s.Enum, value) {
		add("value %v not in enum", value)
		return
	}
	if len(s.AnyOf) > 0 {
		matched := false
		for _, alt := range s.AnyOf {
			var sub []ValidationError
			v.validate(value, alt, path, &sub)
			if len(sub) == 0 {
				matched = true
				break
			}
		}
		if !matched {
			add("value does not match any schema")
		}
	}

	switch s.Type {
	case "":
		return
	case TypeNull:
		if value != nil {
			add("expected null, got %T", value)
		}
	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			add("expected boolean, got %T", value)
		}
	case TypeNumber, TypeInteger:
		n, ok := value.(float64)
		if !ok {
			add("expected %s, got %T", s.Type, value)
			return
		}
		if s.Type == TypeInteger && n != math.Trunc(n) {
			add("expected integer, got %v", n)
		}
		if s.Minimum != nil && n < *s.Minimum {
			add("value %v is less than minimum %v", n, *s.Minimum)
		}
		if s.Maximum != nil && n > *s.Maximum {
			add("value %v is greater than maximum %v", n, *s.Maximum)
		}
	case TypeString:
		str, ok := value.(string)
		if !ok {
			add("expected string, got %T", value)
			return
		}
		l := utf8.RuneCountInString(str)
		if s.MinLength != nil && l < *s.MinLength {
			add("string length %d is less than minimum %d", l, *s.MinLength)
		}
		if s.MaxLength != nil && l > *s.MaxLength {
			add("string length %d is greater than maximum %d", l, *s.MaxLength)
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				add("invalid pattern %q", s.Pattern)
			} else if !re.MatchString(str) {
				add("string does not match pattern %q", s.Pattern)
			}
		}
		if check, ok := v.formats[s.Format]; ok && !check(str) {
			add("string is not a valid %s", s.Format)
		}
	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			add("expected array, got %T", value)
			return
		}
		if s.MinItems != nil && len(arr) < *s.MinItems {
			add("array has %d items, minimum is %d", len(arr), *s.MinItems)
		}
		if s.MaxItems != nil && len(arr) > *s.MaxItems {
			add("array has %d items, maximum is %d", len(arr), *s.MaxItems)
		}
		if s.Items != nil {
			for i, item := range arr {
				v.validate(item, s.Items, fmt.Sprintf("%s[%d]", path, i), errs)
			}
		}
	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			add("expected object, got %T", value)
			return
		}
		for _, req := range s.Required {
			if val, exists := obj[req]; !exists || val == nil {
				*errs = append(*errs, ValidationError{Path: joinPath(path, req), Message: "required field is missing"})
			}
		}
		for name, val := range obj {
			p := joinPath(path, name)
			if prop, ok := s.Properties[name]; ok {
				v.validate(val, prop, p, errs)
				continue
			}
			if ap := s.AdditionalProperties; ap != nil {
				if ap.Schema != nil {
					v.validate(val, ap.Schema, p, errs)
				} else if !ap.Allowed {
					*errs = append(*errs, ValidationError{Path: p, Message: "additional property not allowed"})
				}
			}
		}
	default:
		add("unknown schema type %q", s.Type)
	}
}

func joinPath(base, field string) string {
	if base == "" {
		return field
	}
	return base + "." + field
}

func containsValue(values []any, v any) bool {
	raw, err := json.Marshal(v)
	if err != nil {
		return false
	}
	for _, e := range values {
		if er, err := json.Marshal(e); err == nil && string(er) == string(raw) {
			return true
		}
	}
	return false
}
