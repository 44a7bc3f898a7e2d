package engine

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// shapeDecoder pulls reply text out of one known response shape. ok is false
// when the response does not have that shape.
type shapeDecoder func(resp any) (text string, ok bool)

var shapeDecoders = []shapeDecoder{
	completeText,
	deltaText,
}

// ExtractText normalizes an engine response to plain text. It understands
// the complete shape (choices[0].message.content) and the streaming shape
// (choices[0].delta.content), as typed values, generic maps or raw JSON.
// Unknown shapes yield "".
func ExtractText(resp any) string {
	if raw, ok := rawJSON(resp); ok {
		resp = raw
	}
	for _, decode := range shapeDecoders {
		if text, ok := decode(resp); ok {
			return text
		}
	}
	return ""
}

func rawJSON(resp any) (gjson.Result, bool) {
	var data []byte
	switch r := resp.(type) {
	case json.RawMessage:
		data = r
	case []byte:
		data = r
	case string:
		data = []byte(r)
	default:
		return gjson.Result{}, false
	}
	if !gjson.ValidBytes(data) {
		return gjson.Result{}, false
	}
	return gjson.ParseBytes(data), true
}

// completeText only accepts non-blank content so an empty message still lets
// the streaming shape be tried.
func completeText(resp any) (string, bool) {
	var content string
	switch r := resp.(type) {
	case *ChatCompletionResponse:
		if r == nil || len(r.Choices) == 0 || r.Choices[0].Message == nil {
			return "", false
		}
		content = r.Choices[0].Message.Content
	case ChatCompletionResponse:
		return completeText(&r)
	case map[string]any:
		msg, ok := firstChoice(r)["message"].(map[string]any)
		if !ok {
			return "", false
		}
		content, _ = msg["content"].(string)
	case gjson.Result:
		c := r.Get("choices.0.message.content")
		if c.Type != gjson.String {
			return "", false
		}
		content = c.Str
	default:
		return "", false
	}

	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

func deltaText(resp any) (string, bool) {
	switch r := resp.(type) {
	case *ChatCompletionChunk:
		if r == nil || len(r.Choices) == 0 || r.Choices[0].Delta == nil {
			return "", false
		}
		return contentText(r.Choices[0].Delta.Content)
	case ChatCompletionChunk:
		return deltaText(&r)
	case map[string]any:
		delta, ok := firstChoice(r)["delta"].(map[string]any)
		if !ok {
			return "", false
		}
		return contentText(delta["content"])
	case gjson.Result:
		c := r.Get("choices.0.delta.content")
		switch {
		case c.Type == gjson.String:
			return c.Str, true
		case c.IsArray():
			return partsText(c), true
		case c.IsObject() && c.Get("text").Exists():
			return c.Get("text").String(), true
		}
	}
	return "", false
}

// contentText renders a delta content value: strings as-is, anything else
// through its text rendering.
func contentText(content any) (string, bool) {
	switch c := content.(type) {
	case string:
		return c, true
	case Texter:
		return c.AsText(), true
	case []any:
		var b strings.Builder
		for _, part := range c {
			p, ok := part.(map[string]any)
			if !ok {
				continue
			}
			if typ, _ := p["type"].(string); typ != "" && typ != "text" {
				continue
			}
			text, _ := p["text"].(string)
			b.WriteString(text)
		}
		return b.String(), true
	}
	return "", false
}

func partsText(parts gjson.Result) string {
	var b strings.Builder
	parts.ForEach(func(_, part gjson.Result) bool {
		if typ := part.Get("type").String(); typ == "" || typ == "text" {
			b.WriteString(part.Get("text").String())
		}
		return true
	})
	return b.String()
}

func firstChoice(m map[string]any) map[string]any {
	switch choices := m["choices"].(type) {
	case []any:
		if len(choices) > 0 {
			first, _ := choices[0].(map[string]any)
			return first
		}
	case []map[string]any:
		if len(choices) > 0 {
			return choices[0]
		}
	}
	return nil
}
