// Package msgtype defines the message type tags used to validate pipeline
// wiring. A type is either a MIME media type ("mime:text/plain", with "*"
// wildcards) or an opaque custom tag ("custom:frame").
package msgtype

import (
	"fmt"
	"strings"
)

type kind uint8

const (
	kindMime kind = iota
	kindCustom
)

// MsgType is a closed message type tag.
type MsgType struct {
	kind    kind
	mtype   string // media type, mime only
	subtype string // media subtype, mime only
	custom  string
}

// Any matches every message type.
func Any() MsgType {
	return MsgType{kind: kindMime, mtype: "*", subtype: "*"}
}

// Binary is the application/octet-stream media type.
func Binary() MsgType {
	return MsgType{kind: kindMime, mtype: "application", subtype: "octet-stream"}
}

// Text is the text/plain media type.
func Text() MsgType {
	return MsgType{kind: kindMime, mtype: "text", subtype: "plain"}
}

// Custom returns an opaque named type that only matches itself.
func Custom(name string) MsgType {
	return MsgType{kind: kindCustom, custom: name}
}

// Mime parses a media type string like "text/plain" or "video/*".
func Mime(s string) (MsgType, error) {
	mtype, subtype, ok := strings.Cut(s, "/")
	if !ok || mtype == "" || subtype == "" {
		return MsgType{}, fmt.Errorf("plugflow: invalid media type %q", s)
	}
	if strings.ContainsAny(mtype, " \t;,") || strings.ContainsAny(subtype, " \t;,") {
		return MsgType{}, fmt.Errorf("plugflow: invalid media type %q", s)
	}
	return MsgType{
		kind:    kindMime,
		mtype:   strings.ToLower(mtype),
		subtype: strings.ToLower(subtype),
	}, nil
}

// Parse converts the textual form used in element declarations and pipeline
// configuration: "mime:<media type>" or "custom:<name>". Malformed text is a
// graph-construction error.
func Parse(s string) (MsgType, error) {
	if rest, ok := strings.CutPrefix(s, "mime:"); ok {
		return Mime(rest)
	}
	if rest, ok := strings.CutPrefix(s, "custom:"); ok {
		if rest == "" {
			return MsgType{}, fmt.Errorf("plugflow: empty custom message type")
		}
		return Custom(rest), nil
	}
	return MsgType{}, fmt.Errorf("plugflow: message type %q must start with \"mime:\" or \"custom:\"", s)
}

// Acceptable reports whether a message of type other may be delivered to a
// port declared with the receiver type t. Wildcards only widen the receiver
// side: "mime:*/*" accepts anything, "mime:video/*" accepts any video
// subtype. Custom types match by exact name.
func (t MsgType) Acceptable(other MsgType) bool {
	if t == other {
		return true
	}
	if t == Any() {
		return true
	}
	if t.kind == kindMime && other.kind == kindMime {
		return t.mtype == other.mtype && t.subtype == "*"
	}
	return false
}

func (t MsgType) String() string {
	if t.kind == kindCustom {
		return "custom:" + t.custom
	}
	return "mime:" + t.mtype + "/" + t.subtype
}
