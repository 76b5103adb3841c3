package proto

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Tag identifies a control-frame variant. The wire encoding is an externally
// tagged union: a struct-carrying variant encodes as {"Tag": {...fields}},
// an empty-payload variant encodes as the bare JSON string "Tag".
type Tag string

const (
	TagInit         Tag = "Init"
	TagStartRender  Tag = "StartRender"
	TagRenderResult Tag = "RenderResult"
	TagRecvReady    Tag = "RecvReady"
	TagSendReady    Tag = "SendReady"
)

// FileExt is the closed enumeration of supported output image formats.
type FileExt string

const (
	ExtBMP FileExt = "bmp"
	ExtRGB FileExt = "rgb"
	ExtPNG FileExt = "png"
	ExtJPG FileExt = "jpg"
	ExtJP2 FileExt = "jp2"
	ExtTGA FileExt = "tga"
)

// ValidFileExt reports whether ext is one of the closed set of supported
// output formats.
func ValidFileExt(ext FileExt) bool {
	switch ext {
	case ExtBMP, ExtRGB, ExtPNG, ExtJPG, ExtJP2, ExtTGA:
		return true
	default:
		return false
	}
}

// Frame identifies one image within a project.
type Frame uint64

// RenderResult is the outcome of one render task. It carries no payload:
// richer error detail stays in operator-visible logs (see spec design
// notes), never on the wire.
type RenderResult int

const (
	ResultOk RenderResult = iota
	ResultErr
)

func (r RenderResult) String() string {
	if r == ResultOk {
		return "Ok"
	}
	return "Err"
}

// RenderTask is the immutable unit of work sent from server to worker.
type RenderTask struct {
	ProjectUUID uuid.UUID `json:"project_uuid"`
	ProjectName string    `json:"project_name"`
	Frame       Frame     `json:"frame"`
	OutputExt   FileExt   `json:"output_ext"`
}

// ─── Message variants ──────────────────────────────────────────────────────

// Init is sent once by the worker at connection start.
type Init struct {
	Name string `json:"name,omitempty"`
}

// StartRender is sent by the server to begin dispatching a task; a bundle
// transfer (as sender) immediately follows on the same connection.
type StartRender struct {
	RenderTask
}

// RenderResultMsg is sent by the worker after attempting a render.
type RenderResultMsg struct {
	Result RenderResult
}

// RecvReady is sent by whichever side of a transfer is the receiver.
type RecvReady struct {
	Offset         uint64 `json:"offset"`
	HasCompression bool   `json:"has_compression"`
}

// SendReady is sent by whichever side of a transfer is the sender.
type SendReady struct {
	Length         uint64 `json:"length"`
	UseCompression bool   `json:"use_compression"`
}

// Message is any decoded control frame, tagged by Tag so callers can switch
// on it without a type assertion per variant.
type Message struct {
	Tag         Tag
	Init        *Init
	StartRender *StartRender
	RenderResult *RenderResultMsg
	RecvReady   *RecvReady
	SendReady   *SendReady
}

// Encode returns anonymous wrapper structs as the wire shapes actually
// marshaled: {"Init": {...}}, or the bare tag string for empty-payload
// variants. There
// are no empty-payload variants among the control messages currently
// defined, but RenderResult's inner Ok/Err is itself a bare-tag union.

type renderResultWire struct {
	RenderResult string `json:"RenderResult"`
}

// Encode returns the wire JSON for m. Exactly one of the pointer fields must
// be set.
func Encode(m Message) (any, error) {
	switch m.Tag {
	case TagInit:
		return struct {
			Init Init `json:"Init"`
		}{*m.Init}, nil
	case TagStartRender:
		return struct {
			StartRender StartRender `json:"StartRender"`
		}{*m.StartRender}, nil
	case TagRenderResult:
		return renderResultWire{RenderResult: m.RenderResult.Result.String()}, nil
	case TagRecvReady:
		return struct {
			RecvReady RecvReady `json:"RecvReady"`
		}{*m.RecvReady}, nil
	case TagSendReady:
		return struct {
			SendReady SendReady `json:"SendReady"`
		}{*m.SendReady}, nil
	default:
		return nil, fmt.Errorf("encode: unknown tag %q", m.Tag)
	}
}

// Decode parses a single control-frame line into a Message. allowed restricts
// which tags are acceptable for the current direction/state; a tag outside
// allowed, or a line that is not valid JSON, is a ProtocolViolation.
func Decode(line []byte, allowed map[Tag]bool) (Message, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(line, &probe); err != nil {
		return Message{}, &ProtocolViolation{Detail: fmt.Sprintf("invalid JSON control frame: %v", err)}
	}
	if len(probe) != 1 {
		return Message{}, &ProtocolViolation{Detail: fmt.Sprintf("control frame must have exactly one tag, got %d", len(probe))}
	}

	for key, raw := range probe {
		tag := Tag(key)
		if !allowed[tag] {
			return Message{}, &ProtocolViolation{Detail: fmt.Sprintf("unexpected tag %q", key)}
		}
		switch tag {
		case TagInit:
			var v Init
			if err := json.Unmarshal(raw, &v); err != nil {
				return Message{}, &ProtocolViolation{Detail: "bad Init payload: " + err.Error()}
			}
			return Message{Tag: tag, Init: &v}, nil
		case TagStartRender:
			var v StartRender
			if err := json.Unmarshal(raw, &v); err != nil {
				return Message{}, &ProtocolViolation{Detail: "bad StartRender payload: " + err.Error()}
			}
			if !ValidFileExt(v.OutputExt) {
				return Message{}, &ProtocolViolation{Detail: fmt.Sprintf("bad StartRender output_ext %q", v.OutputExt)}
			}
			return Message{Tag: tag, StartRender: &v}, nil
		case TagRenderResult:
			var s string
			if err := json.Unmarshal(raw, &s); err != nil {
				return Message{}, &ProtocolViolation{Detail: "bad RenderResult payload: " + err.Error()}
			}
			var rr RenderResultMsg
			switch s {
			case "Ok":
				rr.Result = ResultOk
			case "Err":
				rr.Result = ResultErr
			default:
				return Message{}, &ProtocolViolation{Detail: fmt.Sprintf("bad RenderResult value %q", s)}
			}
			return Message{Tag: tag, RenderResult: &rr}, nil
		case TagRecvReady:
			var v RecvReady
			if err := json.Unmarshal(raw, &v); err != nil {
				return Message{}, &ProtocolViolation{Detail: "bad RecvReady payload: " + err.Error()}
			}
			return Message{Tag: tag, RecvReady: &v}, nil
		case TagSendReady:
			var v SendReady
			if err := json.Unmarshal(raw, &v); err != nil {
				return Message{}, &ProtocolViolation{Detail: "bad SendReady payload: " + err.Error()}
			}
			return Message{Tag: tag, SendReady: &v}, nil
		}
	}
	// Unreachable: probe had exactly one entry, handled above.
	return Message{}, &ProtocolViolation{Detail: "unreachable"}
}

// InitMessage builds a Message wrapping Init.
func InitMessage(name string) Message {
	return Message{Tag: TagInit, Init: &Init{Name: name}}
}

// StartRenderMessage builds a Message wrapping StartRender.
func StartRenderMessage(t RenderTask) Message {
	return Message{Tag: TagStartRender, StartRender: &StartRender{RenderTask: t}}
}

// RenderResultMessage builds a Message wrapping RenderResult.
func RenderResultMessage(r RenderResult) Message {
	return Message{Tag: TagRenderResult, RenderResult: &RenderResultMsg{Result: r}}
}

// RecvReadyMessage builds a Message wrapping RecvReady.
func RecvReadyMessage(offset uint64, hasCompression bool) Message {
	return Message{Tag: TagRecvReady, RecvReady: &RecvReady{Offset: offset, HasCompression: hasCompression}}
}

// SendReadyMessage builds a Message wrapping SendReady.
func SendReadyMessage(length uint64, useCompression bool) Message {
	return Message{Tag: TagSendReady, SendReady: &SendReady{Length: length, UseCompression: useCompression}}
}
