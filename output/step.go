package output

import (
	"encoding/json"
	"strings"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// StepType 步骤类型
type StepType string

const (
	StepInitial    StepType = "initial"
	StepToolResult StepType = "tool-result"
)

// Step 一个已封存的模型步骤，封存后不再修改
type Step struct {
	StepType     StepType                   `json:"stepType"`
	Text         string                     `json:"text"`
	Reasoning    string                     `json:"reasoning,omitempty"`
	Sources      []stream.SourcePayload     `json:"sources,omitempty"`
	Files        []stream.FilePayload       `json:"files,omitempty"`
	ToolCalls    []stream.ToolCallPayload   `json:"toolCalls,omitempty"`
	ToolResults  []stream.ToolResultPayload `json:"toolResults,omitempty"`
	Usage        types.Usage                `json:"usage"`
	FinishReason stream.FinishReason        `json:"finishReason,omitempty"`
	Warnings     []string                   `json:"warnings,omitempty"`
	Response     stream.ResponseMetadata    `json:"response,omitempty"`
	Request      map[string]any             `json:"request,omitempty"`
	IsContinued  bool                       `json:"isContinued,omitempty"`
}

// aggregator 运行内的增量聚合状态，只由生产者 goroutine 访问
type aggregator struct {
	text      strings.Builder
	reasoning strings.Builder

	toolCalls   []stream.ToolCallPayload
	toolResults []stream.ToolResultPayload
	object      any
	hasObject   bool

	steps   []Step
	pending Step
	stepTxt strings.Builder
	stepRsn strings.Builder
	touched bool

	finishReason   stream.FinishReason
	finishUsage    *types.Usage
	finishMessages []types.Message
}

func (a *aggregator) add(c stream.Chunk) {
	switch p := c.Payload.(type) {
	case stream.TextDeltaPayload:
		a.text.WriteString(p.Text)
		a.stepTxt.WriteString(p.Text)
		a.touched = true
	case stream.ReasoningDeltaPayload:
		a.reasoning.WriteString(p.Text)
		a.stepRsn.WriteString(p.Text)
		a.touched = true
	case stream.SourcePayload:
		a.pending.Sources = append(a.pending.Sources, p)
		a.touched = true
	case stream.FilePayload:
		a.pending.Files = append(a.pending.Files, p)
		a.touched = true
	case stream.ToolCallPayload:
		a.toolCalls = append(a.toolCalls, p)
		a.pending.ToolCalls = append(a.pending.ToolCalls, p)
		a.touched = true
	case stream.ToolResultPayload:
		a.addToolResult(p)
	case stream.ToolErrorPayload:
		msg, _ := json.Marshal(p.Error)
		a.addToolResult(stream.ToolResultPayload{
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Result:     msg,
			IsError:    true,
		})
	case stream.ObjectPayload:
		a.object = p.Object
		a.hasObject = true
	case stream.StepFinishPayload:
		a.seal(p)
	case stream.FinishPayload:
		a.finishReason = p.StepResult.Reason
		u := p.Usage
		a.finishUsage = &u
		a.finishMessages = p.Messages
	}
}

func (a *aggregator) addToolResult(p stream.ToolResultPayload) {
	a.toolResults = append(a.toolResults, p)
	a.pending.ToolResults = append(a.pending.ToolResults, p)
	a.touched = true
}

// seal 在 step-finish 处封存当前步骤
func (a *aggregator) seal(p stream.StepFinishPayload) {
	step := a.pending
	step.StepType = StepInitial
	if len(a.steps) > 0 {
		step.StepType = StepToolResult
	}
	step.Text = a.stepTxt.String()
	step.Reasoning = a.stepRsn.String()
	step.Usage = p.Usage
	step.Usage.Recompute()
	step.FinishReason = p.FinishReason
	step.Warnings = p.Warnings
	step.Response = p.Response
	step.Request = p.Request
	step.IsContinued = p.IsContinued
	a.steps = append(a.steps, step)

	a.pending = Step{}
	a.stepTxt.Reset()
	a.stepRsn.Reset()
	a.touched = false
}

// sealTrailing 封存最后一个 step-finish 之后仍有内容的步骤
func (a *aggregator) sealTrailing() {
	if !a.touched {
		return
	}
	a.seal(stream.StepFinishPayload{FinishReason: a.finishReason})
}

func (a *aggregator) usage() types.Usage {
	var total types.Usage
	for _, s := range a.steps {
		total.Add(s.Usage)
	}
	if total.IsZero() && a.finishUsage != nil {
		total = *a.finishUsage
	}
	total.Recompute()
	return total
}

func (a *aggregator) reason() stream.FinishReason {
	if a.finishReason != "" {
		return a.finishReason
	}
	if n := len(a.steps); n > 0 && a.steps[n-1].FinishReason != "" {
		return a.steps[n-1].FinishReason
	}
	return stream.FinishUnknown
}

// responseMessages 由已封存步骤构造助手消息；上游 finish 自带消息时优先使用
func (a *aggregator) responseMessages() []types.Message {
	if len(a.finishMessages) > 0 {
		return types.CloneMessages(a.finishMessages)
	}
	var out []types.Message
	for _, s := range a.steps {
		var parts []types.Part
		if s.Reasoning != "" {
			parts = append(parts, types.Part{Type: types.PartReasoning, Text: s.Reasoning})
		}
		if s.Text != "" {
			parts = append(parts, types.TextPart(s.Text))
		}
		for _, f := range s.Files {
			parts = append(parts, types.Part{Type: types.PartFile, File: &types.FileContent{MimeType: f.MediaType, Base64: f.Base64}})
		}
		for _, tc := range s.ToolCalls {
			parts = append(parts, types.Part{Type: types.PartToolCall, ToolCall: &types.ToolCall{
				ID:        tc.ToolCallID,
				Name:      tc.ToolName,
				Arguments: tc.Args,
			}})
		}
		if len(parts) > 0 {
			out = append(out, types.Message{Role: types.RoleAssistant, Parts: parts})
		}

		if len(s.ToolResults) > 0 {
			results := make([]types.Part, 0, len(s.ToolResults))
			for _, tr := range s.ToolResults {
				results = append(results, types.Part{Type: types.PartToolResult, ToolResult: &types.ToolResult{
					ToolCallID: tr.ToolCallID,
					Name:       tr.ToolName,
					Result:     tr.Result,
					IsError:    tr.IsError,
				}})
			}
			out = append(out, types.Message{Role: types.RoleTool, Parts: results})
		}
	}
	return out
}

// fill 把聚合结果写入 res
func (a *aggregator) fill(res *Result) {
	a.sealTrailing()
	res.Text = a.text.String()
	res.Reasoning = a.reasoning.String()
	res.ToolCalls = a.toolCalls
	res.ToolResults = a.toolResults
	res.Steps = a.steps
	res.Usage = a.usage()
	if res.FinishReason == "" {
		res.FinishReason = a.reason()
	}
	if a.hasObject {
		res.Object = a.object
	} else if obj, ok := structuredObject(res.Messages); ok {
		res.Object = obj
	}
}

func structuredObject(msgs []types.Message) (any, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role != types.RoleAssistant {
			continue
		}
		if v, ok := msgs[i].Metadata[types.MetadataStructuredOutput]; ok {
			return v, true
		}
	}
	return nil, false
}
