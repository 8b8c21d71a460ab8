package guard

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// RedactionMethod 脱敏方式
type RedactionMethod string

const (
	RedactMask        RedactionMethod = "mask"
	RedactPlaceholder RedactionMethod = "placeholder"
	RedactRemove      RedactionMethod = "remove"
	RedactHash        RedactionMethod = "hash"
)

// Redactor 按片段替换文本
type Redactor struct {
	Method   RedactionMethod `json:"method" yaml:"method"`
	MaskChar string          `json:"mask_char,omitempty" yaml:"mask_char,omitempty"`
}

// DefaultRedactor 返回占位符脱敏器
func DefaultRedactor() Redactor {
	return Redactor{Method: RedactPlaceholder, MaskChar: "*"}
}

func (r Redactor) replacement(sp Span, original string) string {
	switch r.Method {
	case RedactMask:
		mask := r.MaskChar
		if mask == "" {
			mask = "*"
		}
		return strings.Repeat(mask, utf8.RuneCountInString(original))
	case RedactRemove:
		return ""
	case RedactHash:
		sum := sha256.Sum256([]byte(original))
		return fmt.Sprintf("[%s:%s]", label(sp.Type), hex.EncodeToString(sum[:4]))
	default:
		return "[" + label(sp.Type) + "]"
	}
}

func label(typ string) string {
	if typ == "" {
		return "REDACTED"
	}
	return strings.ToUpper(strings.NewReplacer("-", "_", "/", "_", " ", "_").Replace(typ))
}

// Redact 替换 spans 覆盖的文本。
// 片段按起点从后向前应用，前面的偏移不受影响；重叠部分并入起点更靠前的片段。
func (r Redactor) Redact(text string, spans []Span) string {
	if len(spans) == 0 {
		return text
	}
	ordered := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp, ok := clampSpan(text, sp); ok {
			ordered = append(ordered, sp)
		}
	}
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start > ordered[j].Start })

	out := text
	limit := len(text)
	for _, sp := range ordered {
		if sp.End > limit {
			sp.End = limit
		}
		if sp.Start >= sp.End {
			continue
		}
		out = out[:sp.Start] + r.replacement(sp, text[sp.Start:sp.End]) + out[sp.End:]
		limit = sp.Start
	}
	return out
}

// clampSpan 将片段限制在文本范围内并对齐到 rune 边界
func clampSpan(text string, sp Span) (Span, bool) {
	if sp.Start < 0 {
		sp.Start = 0
	}
	if sp.End > len(text) {
		sp.End = len(text)
	}
	if sp.Start >= sp.End {
		return sp, false
	}
	for sp.Start > 0 && !utf8.RuneStart(text[sp.Start]) {
		sp.Start--
	}
	for sp.End < len(text) && !utf8.RuneStart(text[sp.End]) {
		sp.End++
	}
	return sp, true
}
