// Copyright 2021 The OPA Authors.  All rights reserved.
// Use of this source code is governed by an Apache2
// license that can be found in the LICENSE file.

// Package envelope defines the routed message documents exchanged between
// the CLI, the router, and guest instances. A message is a BSON document
// carrying a top-level "othismo" sub-document with routing metadata; the
// rest of the document is opaque payload.
package envelope

import (
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultRecipient is where an envelope with no resolvable send_to is
// routed.
const DefaultRecipient = "/"

// Header is the recognized routing metadata under the top-level
// "othismo" key.
type Header struct {
	SendTo    string `bson:"send_to"`
	ReplyTo   string `bson:"reply_to,omitempty"`
	RequestID int64  `bson:"request_id,omitempty"`
}

// wireDoc mirrors the on-wire shape: {"othismo": {...}, ...rest opaque}.
type wireDoc struct {
	Othismo Header `bson:"othismo"`
}

// Envelope is a routed message: a routing Header plus an opaque BSON body.
// Body retains the full encoded document (including the othismo
// sub-document) so that fields beyond Header survive round-tripping
// through the router untouched.
type Envelope struct {
	Header Header
	Body   bson.Raw
}

// New builds an Envelope addressed to sendTo carrying body as the
// remainder of the document, merging in the othismo routing header.
func New(sendTo, replyTo string, requestID int64, body bson.M) (Envelope, error) {
	if body == nil {
		body = bson.M{}
	}
	body["othismo"] = Header{SendTo: sendTo, ReplyTo: replyTo, RequestID: requestID}

	raw, err := bson.Marshal(body)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		Header: Header{SendTo: sendTo, ReplyTo: replyTo, RequestID: requestID},
		Body:   raw,
	}, nil
}

// Decode parses raw bytes into an Envelope, extracting the routing header
// and defaulting SendTo to DefaultRecipient when absent or empty.
func Decode(raw []byte) (Envelope, error) {
	var doc wireDoc
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return Envelope{}, err
	}

	header := doc.Othismo
	if header.SendTo == "" {
		header.SendTo = DefaultRecipient
	}

	return Envelope{Header: header, Body: bson.Raw(raw)}, nil
}

// Bytes returns the envelope's full encoded document.
func (e Envelope) Bytes() []byte {
	return []byte(e.Body)
}
