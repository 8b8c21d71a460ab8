package schema

import (
	"regexp"
	"strings"
)

var codeFence = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// ExtractJSON 从模型回复中取出 JSON：优先代码块，其次对象或数组边界
func ExtractJSON(response string) string {
	response = strings.TrimSpace(response)
	if m := codeFence.FindStringSubmatch(response); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if start, end := strings.Index(response, "{"), strings.LastIndex(response, "}"); start >= 0 && end > start {
		return response[start : end+1]
	}
	if start, end := strings.Index(response, "["), strings.LastIndex(response, "]"); start >= 0 && end > start {
		return response[start : end+1]
	}
	return response
}
