// Package protocol defines the JSON frames exchanged over the websocket.
//
// Every frame is an envelope {"event": "<name>", "data": {...}}. Inbound
// frames decode into one of a closed set of types implementing Inbound;
// anything else is rejected by Decode.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Tyrowin/chatroom/internal/common"
)

const (
	EventChatMessage        = "chat/message"
	EventChatGet            = "chat/get"
	EventChatHistory        = "chat/history"
	EventChatDelete         = "chat/delete"
	EventChatRemove         = "chat/remove"
	EventUploadSlice        = "upload/slice"
	EventUploadRequestSlice = "upload/request/slice"
	EventUploadEnd          = "upload/end"
	EventUploadError        = "upload/error"
	EventUserConnect        = "user/connect"
	EventUserDisconnect     = "user/disconnect"
)

type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Inbound is implemented by every client to server frame.
type Inbound interface {
	Event() string
	inbound()
}

type ChatMessage struct {
	Username string `json:"username"`
	Payload  string `json:"payload"`
}

type ChatGet struct {
	Last int `json:"last"`
}

type ChatDelete struct {
	PostID int64 `json:"postid"`
}

type UploadSlice struct {
	User      string `json:"user"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Size      int64  `json:"size"`
	SliceSize int64  `json:"sliceSize,omitempty"`
	Data      Bytes  `json:"data"`
}

func (ChatMessage) Event() string { return EventChatMessage }
func (ChatGet) Event() string     { return EventChatGet }
func (ChatDelete) Event() string  { return EventChatDelete }
func (UploadSlice) Event() string { return EventUploadSlice }

func (ChatMessage) inbound() {}
func (ChatGet) inbound()     {}
func (ChatDelete) inbound()  {}
func (UploadSlice) inbound() {}

// UnmarshalJSON accepts the post id as a number or a numeric string, since
// browsers often read it back from a DOM attribute.
func (d *ChatDelete) UnmarshalJSON(b []byte) error {
	var raw struct {
		PostID json.RawMessage `json:"postid"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if len(raw.PostID) == 0 {
		return errors.New("missing postid")
	}

	var n json.Number
	if raw.PostID[0] == '"' {
		var s string
		if err := json.Unmarshal(raw.PostID, &s); err != nil {
			return err
		}
		n = json.Number(s)
	} else if err := json.Unmarshal(raw.PostID, &n); err != nil {
		return err
	}

	id, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid postid %q", n)
	}
	d.PostID = id
	return nil
}

// Bytes is binary slice data. It decodes from a base64 string or from an
// array of byte values and always encodes as base64.
type Bytes []byte

func (b *Bytes) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*b = nil
		return nil
	case data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return fmt.Errorf("invalid base64 data: %w", err)
		}
		*b = decoded
		return nil
	case data[0] == '[':
		var values []int
		if err := json.Unmarshal(data, &values); err != nil {
			return err
		}
		out := make([]byte, len(values))
		for i, v := range values {
			if v < 0 || v > 255 {
				return fmt.Errorf("byte value %d out of range", v)
			}
			out[i] = byte(v)
		}
		*b = out
		return nil
	default:
		return errors.New("unsupported data encoding")
	}
}

func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(b))
}

// Decode parses one inbound frame. Unknown event names wrap
// common.ErrUnknownEvent.
func Decode(raw []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	var msg Inbound
	switch env.Event {
	case EventChatMessage:
		var m ChatMessage
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case EventChatGet:
		var m ChatGet
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case EventChatDelete:
		var m ChatDelete
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		msg = m
	case EventUploadSlice:
		var m UploadSlice
		if err := decodeData(env.Data, &m); err != nil {
			return nil, err
		}
		if m.Name == "" {
			return nil, fmt.Errorf("%s: missing file name", env.Event)
		}
		msg = m
	default:
		return nil, fmt.Errorf("event %q: %w", env.Event, common.ErrUnknownEvent)
	}
	return msg, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 {
		return errors.New("missing data")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	return nil
}
