// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

package msgjson

import (
	"encoding/json"
	"fmt"
)

// Error codes carried in a response's Error. The relay page uses the same
// values.
const (
	RPCParseError   = 1
	RPCUnknownRoute = 2
	HostCallError   = 4
	UnknownObject   = 5
)

// Routes are destinations for a "payload" of data. Apart from the routes
// below, a relay request's route is the name of the wallet method to invoke,
// e.g. "getKey" or "signAmino".
const (
	// HelloRoute is a page-originating notification sent once the relay page
	// has connected. The payload is a Hello.
	HelloRoute = "hello"
	// ReleaseRoute is a notification that a host object reference will not be
	// used again and the page may drop it. The payload is an ObjectRef.
	ReleaseRoute = "$release"
)

// Hello is the payload of the HelloRoute notification.
type Hello struct {
	// Available is whether window.keplr was defined when the page loaded.
	Available bool   `json:"available"`
	UserAgent string `json:"userAgent,omitempty"`
}

// CallRequest is the payload of a method-call request. Object is zero for a
// call on the wallet itself. When Ref is true, the page retains the result and
// responds with an ObjectRef rather than the serialized value.
type CallRequest struct {
	Object uint64            `json:"object,omitempty"`
	Args   []json.RawMessage `json:"args"`
	Ref    bool              `json:"ref,omitempty"`
}

// ObjectRef identifies a host object held by the relay page. Props is a
// snapshot of the object's data properties taken when the reference was
// created, so they can be read without a round trip.
type ObjectRef struct {
	Ref   uint64                     `json:"ref"`
	Props map[string]json.RawMessage `json:"props,omitempty"`
}

// Error is the error of a failed request.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("error code %d: %s", e.Code, e.Message)
}

// NewError is a constructor for an Error.
func NewError(code int, format string, a ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, a...),
	}
}

// ResponsePayload is the payload of a Response. Exactly one of Result and
// Error is set.
type ResponsePayload struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// MessageType is the kind of Message, which determines which of its fields
// are set.
type MessageType uint8

// Request and Response carry an ID. Request and Notification carry a route.
const (
	Request MessageType = iota + 1
	Response
	Notification
)

func (mt MessageType) String() string {
	switch mt {
	case Request:
		return "request"
	case Response:
		return "response"
	case Notification:
		return "notification"
	}
	return fmt.Sprintf("MessageType(%d)", uint8(mt))
}

// Message is a relay websocket message.
type Message struct {
	Type    MessageType     `json:"type"`
	Route   string          `json:"route,omitempty"`
	ID      uint64          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeMessage decodes a *Message. The message is nil for JSON null.
func DecodeMessage(b []byte) (msg *Message, err error) {
	err = json.Unmarshal(b, &msg)
	return
}

func newMessage(mt MessageType, route string, id uint64, payload interface{}) (*Message, error) {
	if (mt == Request || mt == Response) && id == 0 {
		return nil, fmt.Errorf("%s with id 0", mt)
	}
	if (mt == Request || mt == Notification) && route == "" {
		return nil, fmt.Errorf("%s with no route", mt)
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: mt, Route: route, ID: id, Payload: b}, nil
}

// NewRequest encodes the payload of a request.
func NewRequest(id uint64, route string, payload interface{}) (*Message, error) {
	return newMessage(Request, route, id, payload)
}

// NewResponse encodes a response with either a result or an error.
func NewResponse(id uint64, result interface{}, rpcErr *Error) (*Message, error) {
	resp := &ResponsePayload{Error: rpcErr}
	if rpcErr == nil {
		b, err := json.Marshal(result)
		if err != nil {
			return nil, err
		}
		resp.Result = b
	}
	return newMessage(Response, "", id, resp)
}

// NewNotification encodes the payload of a notification.
func NewNotification(route string, payload interface{}) (*Message, error) {
	return newMessage(Notification, route, 0, payload)
}

// Response decodes the payload of a Response.
func (msg *Message) Response() (*ResponsePayload, error) {
	if msg.Type != Response {
		return nil, fmt.Errorf("%s is not a response", msg.Type)
	}
	var resp *ResponsePayload
	if err := json.Unmarshal(msg.Payload, &resp); err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, fmt.Errorf("null response payload")
	}
	return resp, nil
}

// Unmarshal decodes the payload into v.
func (msg *Message) Unmarshal(v interface{}) error {
	return json.Unmarshal(msg.Payload, v)
}
