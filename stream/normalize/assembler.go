package normalize

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BaSui01/agentstream/stream"
	"github.com/BaSui01/agentstream/types"
)

// assembler 维护单次运行的块状态，供各方言共享
type assembler struct {
	started     bool
	stepOpen    bool
	finished    bool
	messageID   string
	textID      string
	reasoningID string
	blockSeq    int

	tools *toolAccumulator

	pendingReason stream.FinishReason
	stepUsage     types.Usage
	totalUsage    types.Usage
}

func newAssembler() *assembler {
	return &assembler{tools: newToolAccumulator()}
}

func (a *assembler) nextBlockID(prefix string) string {
	a.blockSeq++
	if a.messageID == "" {
		return fmt.Sprintf("%s-%d", prefix, a.blockSeq)
	}
	return fmt.Sprintf("%s:%s-%d", a.messageID, prefix, a.blockSeq)
}

// ensureStep 在首个内容前发出 start 与 step-start
func (a *assembler) ensureStep(runID, messageID string) []stream.Chunk {
	var out []stream.Chunk
	if messageID != "" && !a.stepOpen {
		a.messageID = messageID
	}
	if !a.started {
		a.started = true
		out = append(out, stream.Start(runID, a.messageID))
	}
	if !a.stepOpen {
		a.stepOpen = true
		a.finished = false
		a.pendingReason = ""
		a.stepUsage = types.Usage{}
		out = append(out, stream.StepStart(runID, stream.StepStartPayload{MessageID: a.messageID}))
	}
	return out
}

func (a *assembler) text(runID, delta string) []stream.Chunk {
	if delta == "" {
		return nil
	}
	out := a.ensureStep(runID, "")
	out = append(out, a.closeReasoning(runID, "")...)
	if a.textID == "" {
		a.textID = a.nextBlockID("text")
		out = append(out, stream.TextStart(runID, a.textID))
	}
	return append(out, stream.TextDelta(runID, a.textID, delta))
}

func (a *assembler) reasoning(runID, delta string) []stream.Chunk {
	if delta == "" {
		return nil
	}
	out := a.ensureStep(runID, "")
	out = append(out, a.closeText(runID)...)
	if a.reasoningID == "" {
		a.reasoningID = a.nextBlockID("reasoning")
		out = append(out, stream.ReasoningStart(runID, a.reasoningID))
	}
	return append(out, stream.ReasoningDelta(runID, a.reasoningID, delta))
}

func (a *assembler) closeText(runID string) []stream.Chunk {
	if a.textID == "" {
		return nil
	}
	id := a.textID
	a.textID = ""
	return []stream.Chunk{stream.TextEnd(runID, id)}
}

func (a *assembler) closeReasoning(runID, signature string) []stream.Chunk {
	if a.reasoningID == "" {
		return nil
	}
	id := a.reasoningID
	a.reasoningID = ""
	return []stream.Chunk{stream.New(runID, stream.FromAgent, stream.ReasoningEndPayload{ID: id, Signature: signature})}
}

// toolDelta 追加工具参数增量；后续增量缺失的名称与 ID 由首个增量补全
func (a *assembler) toolDelta(runID string, slot int, id, name, args string) []stream.Chunk {
	out := a.ensureStep(runID, "")
	out = append(out, a.closeText(runID)...)
	out = append(out, a.closeReasoning(runID, "")...)
	call := a.tools.add(slot, id, name, args)
	if args == "" && (id == "" || call.announced) {
		return out
	}
	call.announced = true
	return append(out, stream.ToolCallDelta(runID, call.id, call.name, args))
}

// flushTools 发出累积完成的 tool-call
func (a *assembler) flushTools(runID string) []stream.Chunk {
	calls := a.tools.drain()
	out := make([]stream.Chunk, 0, len(calls))
	for _, c := range calls {
		out = append(out, stream.ToolCall(runID, c.id, c.name, c.arguments()))
	}
	return out
}

func (a *assembler) addUsage(u types.Usage) {
	a.stepUsage = u
	a.stepUsage.Recompute()
}

// finishStep 关闭当前步骤；非 tool-calls 原因同时结束运行
func (a *assembler) finishStep(runID string, reason stream.FinishReason) []stream.Chunk {
	if !a.stepOpen {
		return nil
	}
	out := a.closeText(runID)
	out = append(out, a.closeReasoning(runID, "")...)
	out = append(out, a.flushTools(runID)...)
	a.stepOpen = false
	a.pendingReason = ""
	a.totalUsage.Add(a.stepUsage)
	out = append(out, stream.StepFinish(runID, stream.StepFinishPayload{
		MessageID:    a.messageID,
		FinishReason: reason,
		Usage:        a.stepUsage,
		IsContinued:  reason == stream.FinishToolCalls,
	}))
	if reason != stream.FinishToolCalls {
		out = append(out, a.finish(runID, reason)...)
	}
	return out
}

func (a *assembler) finish(runID string, reason stream.FinishReason) []stream.Chunk {
	if a.finished || !a.started {
		return nil
	}
	a.finished = true
	return []stream.Chunk{stream.Finish(runID, stream.FinishPayload{
		StepResult: stream.StepResult{Reason: reason},
		Usage:      a.totalUsage,
	})}
}

// close 在上游结束时补齐未完成的步骤与 finish
func (a *assembler) close(runID string) []stream.Chunk {
	var out []stream.Chunk
	reason := a.pendingReason
	if a.stepOpen {
		if reason == "" {
			reason = stream.FinishUnknown
		}
		out = append(out, a.finishStep(runID, reason)...)
	}
	if reason == "" {
		reason = stream.FinishToolCalls
	}
	return append(out, a.finish(runID, reason)...)
}

type toolCallState struct {
	slot      int
	id        string
	name      string
	args      []byte
	announced bool
}

func (c *toolCallState) arguments() json.RawMessage {
	if len(c.args) == 0 {
		return json.RawMessage(`{}`)
	}
	if !json.Valid(c.args) {
		raw, _ := json.Marshal(string(c.args))
		return raw
	}
	return json.RawMessage(c.args)
}

// toolAccumulator 按槽位（OpenAI index / Anthropic block index）累积工具调用
type toolAccumulator struct {
	calls map[int]*toolCallState
	last  int
}

func newToolAccumulator() *toolAccumulator {
	return &toolAccumulator{calls: make(map[int]*toolCallState), last: -1}
}

// add 记录增量。slot < 0 表示沿用最近的调用（agentflow 线格式不带 index）
func (t *toolAccumulator) add(slot int, id, name, args string) *toolCallState {
	if slot < 0 {
		if id != "" || t.last < 0 {
			slot = len(t.calls)
			for t.calls[slot] != nil {
				slot++
			}
		} else {
			slot = t.last
		}
	}
	c, ok := t.calls[slot]
	if !ok {
		c = &toolCallState{slot: slot}
		t.calls[slot] = c
	}
	if id != "" {
		c.id = id
	}
	if name != "" && c.name == "" {
		c.name = name
	}
	c.args = append(c.args, args...)
	t.last = slot
	return c
}

func (t *toolAccumulator) drain() []*toolCallState {
	out := make([]*toolCallState, 0, len(t.calls))
	for _, c := range t.calls {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].slot < out[j].slot })
	t.calls = make(map[int]*toolCallState)
	t.last = -1
	return out
}
