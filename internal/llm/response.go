package llm

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Usage reports token accounting. Every field is optional since not every
// backend reports all of them.
type Usage struct {
	PromptTokens     *int `json:"prompt_tokens,omitempty"`
	CompletionTokens *int `json:"completion_tokens,omitempty"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
}

// Response is the parsed result of one generation call.
type Response struct {
	Text  string
	Usage *Usage
}

// Totals accumulates usage across calls. Missing fields count as zero.
type Totals struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	ReasoningTokens  int `json:"reasoning_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add folds u into t. A nil u is a no-op.
func (t *Totals) Add(u *Usage) {
	if u == nil {
		return
	}
	t.PromptTokens += deref(u.PromptTokens)
	t.CompletionTokens += deref(u.CompletionTokens)
	t.ReasoningTokens += deref(u.ReasoningTokens)
	t.TotalTokens += deref(u.TotalTokens)
}

// Merge folds another total into t.
func (t *Totals) Merge(o Totals) {
	t.PromptTokens += o.PromptTokens
	t.CompletionTokens += o.CompletionTokens
	t.ReasoningTokens += o.ReasoningTokens
	t.TotalTokens += o.TotalTokens
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

type object = map[string]json.RawMessage

// parseResponse extracts text and usage from a 200 body. Text is looked up,
// in order, in a top-level "text" field, the first choice's message content
// (a string or a list of parts), and the first choice's legacy "text".
func parseResponse(body []byte) (Response, error) {
	var data object
	if err := json.Unmarshal(body, &data); err != nil {
		return Response{}, fmt.Errorf("%w: decoding body: %v", ErrResponseShape, err)
	}
	text, ok := extractText(data)
	if !ok {
		return Response{}, ErrResponseShape
	}
	return Response{Text: text, Usage: parseUsage(data["usage"])}, nil
}

func extractText(data object) (string, bool) {
	if s, ok := asString(data["text"]); ok {
		return s, true
	}

	var choices []object
	if err := json.Unmarshal(data["choices"], &choices); err != nil || len(choices) == 0 {
		return "", false
	}
	first := choices[0]

	var message object
	if err := json.Unmarshal(first["message"], &message); err == nil {
		content := message["content"]
		if s, ok := asString(content); ok {
			return s, true
		}
		var parts []json.RawMessage
		if err := json.Unmarshal(content, &parts); err == nil && parts != nil {
			var b strings.Builder
			for _, p := range parts {
				b.WriteString(partText(p))
			}
			return b.String(), true
		}
	}

	if s, ok := asString(first["text"]); ok {
		return s, true
	}
	return "", false
}

// partText returns the "text" of an object part, or the part itself
// rendered as text.
func partText(raw json.RawMessage) string {
	var obj object
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		s, _ := asString(obj["text"])
		return s
	}
	if s, ok := asString(raw); ok {
		return s
	}
	return string(raw)
}

func asString(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

func parseUsage(raw json.RawMessage) *Usage {
	var fields object
	if err := json.Unmarshal(raw, &fields); err != nil || len(fields) == 0 {
		return nil
	}
	u := &Usage{
		PromptTokens:     asInt(fields["prompt_tokens"]),
		CompletionTokens: asInt(fields["completion_tokens"]),
		ReasoningTokens:  asInt(fields["reasoning_tokens"]),
		TotalTokens:      asInt(fields["total_tokens"]),
	}
	if u.ReasoningTokens == nil {
		var details object
		if err := json.Unmarshal(fields["completion_tokens_details"], &details); err == nil {
			u.ReasoningTokens = asInt(details["reasoning_tokens"])
		}
	}
	return u
}

func asInt(raw json.RawMessage) *int {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil || math.IsNaN(f) {
		return nil
	}
	n := int(f)
	return &n
}
