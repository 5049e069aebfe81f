package bridge

import _ "embed"

// ClientJS is the browser side of the bridge. It is served at
// "<prefix>/client.js" and reads its prefix from the script tag's
// data-prefix attribute.
//
//go:embed client.js
var ClientJS []byte

// Message types sent by the browser.
const (
	TypeHello      = "hello"
	TypeHashChange = "hashchange"
)

// Message types sent by the server.
const (
	TypeSet      = "set"
	TypeClear    = "clear"
	TypeNavigate = "navigate"
)

// Message is one JSON text frame in either direction. Hash never carries the
// leading '#'.
//
// Seq numbers the server's set and clear messages. A hashchange carries the
// Seq of the last set or clear the browser applied, so the server can tell
// an up-to-date report from one that was sent before its latest write.
type Message struct {
	Type   string `json:"type"`
	Seq    uint64 `json:"seq,omitempty"`
	Hash   string `json:"hash,omitempty"`
	Path   string `json:"path,omitempty"`
	Search string `json:"search,omitempty"`
	URL    string `json:"url,omitempty"`
}
