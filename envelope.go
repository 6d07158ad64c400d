package wsipc

import (
	"encoding/json"
	"errors"
)

// Reserved channels interpreted by transports. Join and leave manage room membership of a
// connection, with the room carried in the envelope's Room field. Ping only keeps an idle
// connection within Limits.ReadTimeout.
const (
	ChannelJoin  = "ipc:join"
	ChannelLeave = "ipc:leave"
	ChannelPing  = "ipc:ping"
)

var ErrInvalidEnvelope = errors.New("invalid envelope")

// Envelope is the unit exchanged between the two processes.
//
// On the wire it is a JSON object:
//
//	{ "event": string, "data": any, "response_id"?: string, "room"?: string,
//	  "reply"?: bool, "error"?: string }
//
// "channel" is accepted as an alias for "event" and "payload" as an alias for "data".
// A present ResponseID means the envelope is either a request awaiting a reply or a reply
// to an earlier request. Reply is set on replies so that a late reply is never mistaken for a
// fresh request.
type Envelope struct {
	Event      string          `json:"event"`
	Data       json.RawMessage `json:"data,omitempty"`
	ResponseID string          `json:"response_id,omitempty"`
	Room       string          `json:"room,omitempty"`
	Reply      bool            `json:"reply,omitempty"`
	Error      string          `json:"error,omitempty"`
}

// wireEnvelope mirrors Envelope with the accepted aliases
type wireEnvelope struct {
	Event      string          `json:"event"`
	Channel    string          `json:"channel"`
	Data       json.RawMessage `json:"data"`
	Payload    json.RawMessage `json:"payload"`
	ResponseID string          `json:"response_id"`
	Room       string          `json:"room"`
	Reply      bool            `json:"reply"`
	Error      string          `json:"error"`
}

func (e *Envelope) UnmarshalJSON(b []byte) error {
	var w wireEnvelope
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	e.Event = w.Event
	if e.Event == "" {
		e.Event = w.Channel
	}
	e.Data = w.Data
	if e.Data == nil {
		e.Data = w.Payload
	}
	e.ResponseID = w.ResponseID
	e.Room = w.Room
	e.Reply = w.Reply
	e.Error = w.Error
	return nil
}

// NewEnvelope JSON-encodes `data` into a new envelope for `event`
func NewEnvelope(event string, data interface{}) (*Envelope, error) {
	buf, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: buf}, nil
}

// IsControl reports whether the envelope is a transport control message
func (e *Envelope) IsControl() bool {
	return e.Event == ChannelJoin || e.Event == ChannelLeave || e.Event == ChannelPing
}

// DecodeData unmarshals the envelope's data into `v`
func (e *Envelope) DecodeData(v interface{}) error {
	if len(e.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(e.Data, v)
}

// EncodeEnvelope returns the JSON wire form of `e`
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses the JSON wire form of an envelope
func DecodeEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{}
	if err := json.Unmarshal(b, e); err != nil {
		return nil, err
	}
	if e.Event == "" && e.ResponseID == "" {
		return nil, ErrInvalidEnvelope
	}
	return e, nil
}

func encodeData(data interface{}) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return v, nil
	}
	return json.Marshal(data)
}

// reply builds the reply envelope for request `e`
func (e *Envelope) reply(data []byte, err error) *Envelope {
	r := &Envelope{Event: e.Event, ResponseID: e.ResponseID, Reply: true}
	if err != nil {
		r.Error = err.Error()
	} else {
		r.Data = data
	}
	return r
}
