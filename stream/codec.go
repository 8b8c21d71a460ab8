package stream

import (
	"encoding/json"
	"fmt"
)

type wireChunk struct {
	RunID   string          `json:"runId"`
	From    From            `json:"from"`
	Type    ChunkType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MarshalJSON 编码为 {runId, from, type, payload}
func (c Chunk) MarshalJSON() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(c.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", c.Type, err)
	}
	return json.Marshal(wireChunk{RunID: c.RunID, From: c.From, Type: c.Type, Payload: raw})
}

// UnmarshalJSON 按 type 字段还原载荷
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var w wireChunk
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p, err := decodePayload(w.Type, w.Payload)
	if err != nil {
		return err
	}
	*c = Chunk{RunID: w.RunID, From: w.From, Type: w.Type, Payload: p}
	return nil
}
