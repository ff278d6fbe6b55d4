// Package message implements the index server wire protocol: a closed set of
// tagged message kinds, each encoded as one JSON object carrying its kind
// under the "_class" key.
package message

import (
	"bytes"
	"encoding/json"
)

type Kind string

const (
	KindWelcome             Kind = "Welcome"
	KindAuthenticateRequest Kind = "AuthenticateRequest"
	KindAuthenticateReply   Kind = "AuthenticateReply"
	KindShareRequest        Kind = "ShareRequest"
	KindShareReply          Kind = "ShareReply"
	KindDropShareRequest    Kind = "DropShareRequest"
	KindDropShareReply      Kind = "DropShareReply"
	KindSearchRequest       Kind = "SearchRequest"
	KindSearchReply         Kind = "SearchReply"
	KindLookupRequest       Kind = "LookupRequest"
	KindLookupReply         Kind = "LookupReply"
	KindError               Kind = "Error"

	kindChunkDescriptor = "ChunkDescriptor"
	kindIndexElement    = "IndexElement"

	classKey = "_class"
)

// Message is implemented by every wire message kind. The set is closed:
// only types in this package can satisfy it.
type Message interface {
	Kind() Kind
	encodeFields(e *encoder)
	decodeFields(d *decoder)
}

var factories = map[Kind]func() Message{
	KindWelcome:             func() Message { return &Welcome{} },
	KindAuthenticateRequest: func() Message { return &AuthenticateRequest{} },
	KindAuthenticateReply:   func() Message { return &AuthenticateReply{} },
	KindShareRequest:        func() Message { return &ShareRequest{} },
	KindShareReply:          func() Message { return &ShareReply{} },
	KindDropShareRequest:    func() Message { return &DropShareRequest{} },
	KindDropShareReply:      func() Message { return &DropShareReply{} },
	KindSearchRequest:       func() Message { return &SearchRequest{} },
	KindSearchReply:         func() Message { return &SearchReply{} },
	KindLookupRequest:       func() Message { return &LookupRequest{} },
	KindLookupReply:         func() Message { return &LookupReply{} },
	KindError:               func() Message { return &ErrorMsg{} },
}

// Encode renders m as a single JSON object without a trailing newline.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, serializationErrorf("nil message")
	}

	e := newEncoder(string(m.Kind()))
	m.encodeFields(e)

	return e.bytes()
}

// Decode parses one JSON object into the message kind named by its tag.
func Decode(data []byte) (Message, error) {
	d, err := newDecoder(data)
	if err != nil {
		return nil, err
	}

	tag := d.class()
	if d.err != nil {
		return nil, d.err
	}

	factory, ok := factories[Kind(tag)]
	if !ok {
		return nil, serializationErrorf("unknown message kind %q", tag)
	}

	m := factory()
	m.decodeFields(d)
	if d.err != nil {
		return nil, d.err
	}

	return m, nil
}

// IsRequest reports whether m is one of the requests a session accepts
// after authentication.
func IsRequest(m Message) bool {
	switch m.(type) {
	case *ShareRequest, *DropShareRequest, *SearchRequest, *LookupRequest:
		return true
	}

	return false
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}
