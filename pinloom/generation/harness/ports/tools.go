package harnessports

import (
	"context"
	"encoding/json"
)

// ToolKind tags a tool with the capability it provides. Schema generation,
// argument normalization and result cleaning are selected by kind.
type ToolKind int

const (
	KindUnknown ToolKind = iota
	KindImageSearch
	KindTextToImage
	KindImageToImage
)

func (k ToolKind) String() string {
	switch k {
	case KindImageSearch:
		return "image_search"
	case KindTextToImage:
		return "text_to_image"
	case KindImageToImage:
		return "image_to_image"
	default:
		return "unknown"
	}
}

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string // assigned by the model, echoed back on the tool result
	Name string
	Args json.RawMessage
}

// Tool defines the runtime that executes a tool call.
type Tool interface {
	Name() string
	Description() string
	Kind() ToolKind
	Invoke(ctx context.Context, args json.RawMessage) (any, error)
}
