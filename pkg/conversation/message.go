package conversation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

type BlockKind string

const (
	BlockKindText       BlockKind = "text"
	BlockKindImage      BlockKind = "image"
	BlockKindDocument   BlockKind = "document"
	BlockKindToolCall   BlockKind = "tool_call"
	BlockKindToolResult BlockKind = "tool_result"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWEBP ImageFormat = "webp"
)

type DocumentFormat string

const (
	DocumentFormatPDF  DocumentFormat = "pdf"
	DocumentFormatCSV  DocumentFormat = "csv"
	DocumentFormatDOC  DocumentFormat = "doc"
	DocumentFormatDOCX DocumentFormat = "docx"
	DocumentFormatXLS  DocumentFormat = "xls"
	DocumentFormatXLSX DocumentFormat = "xlsx"
	DocumentFormatHTML DocumentFormat = "html"
	DocumentFormatTXT  DocumentFormat = "txt"
	DocumentFormatMD   DocumentFormat = "md"
)

type ToolCall struct {
	ToolID string          `json:"toolID" yaml:"tool_id"`
	Name   string          `json:"name" yaml:"name"`
	Input  json.RawMessage `json:"input,omitempty" yaml:"input,omitempty"`
}

type ToolResult struct {
	ToolID string `json:"toolID" yaml:"tool_id"`
	Result string `json:"result" yaml:"result"`
}

// ContentBlock is one unit of message content. Kind selects which of the
// remaining fields are meaningful. Blocks that originate from a provider may
// carry an empty ID.
type ContentBlock struct {
	ID   string    `json:"id,omitempty" yaml:"id,omitempty"`
	Kind BlockKind `json:"kind" yaml:"kind"`

	Text string `json:"text,omitempty" yaml:"text,omitempty"`

	// Format is an ImageFormat or a DocumentFormat depending on Kind.
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
	Name   string `json:"name,omitempty" yaml:"name,omitempty"`
	Bytes  []byte `json:"bytes,omitempty" yaml:"-"`

	ToolCall   *ToolCall   `json:"toolCall,omitempty" yaml:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"toolResult,omitempty" yaml:"tool_result,omitempty"`
}

func NewTextBlock(text string) ContentBlock {
	return ContentBlock{ID: uuid.NewString(), Kind: BlockKindText, Text: text}
}

func NewImageBlock(format ImageFormat, b []byte, name string) ContentBlock {
	return ContentBlock{ID: uuid.NewString(), Kind: BlockKindImage, Format: string(format), Bytes: b, Name: name}
}

func NewDocumentBlock(format DocumentFormat, b []byte, name string) ContentBlock {
	return ContentBlock{ID: uuid.NewString(), Kind: BlockKindDocument, Format: string(format), Bytes: b, Name: name}
}

func NewToolCallBlock(toolID, name string, input json.RawMessage) ContentBlock {
	return ContentBlock{
		ID:       uuid.NewString(),
		Kind:     BlockKindToolCall,
		ToolCall: &ToolCall{ToolID: toolID, Name: name, Input: input},
	}
}

func NewToolResultBlock(toolID, result string) ContentBlock {
	return ContentBlock{
		ID:         uuid.NewString(),
		Kind:       BlockKindToolResult,
		ToolResult: &ToolResult{ToolID: toolID, Result: result},
	}
}

func (b ContentBlock) String() string {
	switch b.Kind {
	case BlockKindText:
		return b.Text
	case BlockKindImage, BlockKindDocument:
		return fmt.Sprintf("[%s %s (%s, %d bytes)]", b.Kind, b.Name, b.Format, len(b.Bytes))
	case BlockKindToolCall:
		if b.ToolCall == nil {
			return "[tool_call]"
		}
		return fmt.Sprintf("[tool_call %s %s]", b.ToolCall.Name, b.ToolCall.Input)
	case BlockKindToolResult:
		if b.ToolResult == nil {
			return "[tool_result]"
		}
		return fmt.Sprintf("[tool_result %s]", b.ToolResult.Result)
	default:
		return fmt.Sprintf("[%s]", b.Kind)
	}
}

// Message is a single turn of a thread. Role alternation is a convention only.
type Message struct {
	ID      string         `json:"id" yaml:"id"`
	Role    Role           `json:"role" yaml:"role"`
	Content []ContentBlock `json:"content" yaml:"content"`
}

func NewMessage(role Role, blocks ...ContentBlock) Message {
	return Message{ID: uuid.NewString(), Role: role, Content: blocks}
}

func NewUserMessage(text string, attachments ...ContentBlock) Message {
	blocks := make([]ContentBlock, 0, len(attachments)+1)
	blocks = append(blocks, NewTextBlock(text))
	blocks = append(blocks, attachments...)
	return NewMessage(RoleUser, blocks...)
}

func NewAssistantMessage(text string) Message {
	return NewMessage(RoleAssistant, NewTextBlock(text))
}

// Text concatenates the text blocks of the message.
func (m Message) Text() string {
	var parts []string
	for _, b := range m.Content {
		if b.Kind == BlockKindText && b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// LeadText returns the text of the first block when it is a text block.
func (m Message) LeadText() string {
	if len(m.Content) == 0 || m.Content[0].Kind != BlockKindText {
		return ""
	}
	return m.Content[0].Text
}

func (m Message) HasKind(kind BlockKind) bool {
	for _, b := range m.Content {
		if b.Kind == kind {
			return true
		}
	}
	return false
}

// Coalesce merges consecutive messages with the same role into one message,
// concatenating their content in order. The input is not modified.
func Coalesce(messages []Message) []Message {
	ret := make([]Message, 0, len(messages))
	for _, m := range messages {
		if n := len(ret); n > 0 && ret[n-1].Role == m.Role {
			merged := make([]ContentBlock, 0, len(ret[n-1].Content)+len(m.Content))
			merged = append(merged, ret[n-1].Content...)
			merged = append(merged, m.Content...)
			ret[n-1].Content = merged
			continue
		}
		ret = append(ret, m)
	}
	return ret
}
