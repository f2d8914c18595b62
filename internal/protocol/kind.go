// Package protocol implements the clipsync wire protocol: the length-
// delimited frame codec, the closed catalog of message kinds, and the
// binary payload codec shared by the relay and every device client.
package protocol

import "time"

// Kind is the 2-byte message kind code carried in every frame header.
type Kind uint16

const (
	// Session lifecycle.
	KindConnect      Kind = 0x0001
	KindConnectAck   Kind = 0x0002
	KindDisconnect   Kind = 0x0003
	KindHeartbeat    Kind = 0x0004
	KindHeartbeatAck Kind = 0x0005

	// Authentication.
	KindAuthLogin    Kind = 0x0010
	KindAuthRegister Kind = 0x0011
	KindAuthApiKey   Kind = 0x0012
	KindAuthResponse Kind = 0x0013
	KindAuthLogout   Kind = 0x0014

	// Clipboard operations.
	KindClipboardPush         Kind = 0x0020
	KindClipboardPushAck      Kind = 0x0021
	KindClipboardPull         Kind = 0x0022
	KindClipboardHistory      Kind = 0x0023
	KindClipboardBroadcast    Kind = 0x0024
	KindClipboardSearch       Kind = 0x0025
	KindClipboardSearchResult Kind = 0x0026
	KindClipboardMoveToTop    Kind = 0x0027
	KindClipboardMoveToTopAck Kind = 0x0028
	KindClipboardDelete       Kind = 0x0029
	KindClipboardDeleteAck    Kind = 0x002a

	KindError Kind = 0x00ff
)

// Protocol-wide constants shared by both endpoints.
const (
	// DefaultPort is the relay's default TCP port.
	DefaultPort = 6789

	// HeartbeatInterval is how often a peer is expected to send a Heartbeat.
	HeartbeatInterval = 30 * time.Second

	// ConnectionTimeout is the idle period after which a session is
	// force-closed without notification.
	ConnectionTimeout = 120 * time.Second

	// ApiKeyPrefix is the fixed prefix of every issued API key token.
	ApiKeyPrefix = "csk"

	// ApiKeyLength is the fixed total token length: prefix + 32 opaque chars.
	ApiKeyLength = 35
)

var kindNames = map[Kind]string{
	KindConnect:               "Connect",
	KindConnectAck:            "ConnectAck",
	KindDisconnect:            "Disconnect",
	KindHeartbeat:             "Heartbeat",
	KindHeartbeatAck:          "HeartbeatAck",
	KindAuthLogin:             "AuthLogin",
	KindAuthRegister:          "AuthRegister",
	KindAuthApiKey:            "AuthApiKey",
	KindAuthResponse:          "AuthResponse",
	KindAuthLogout:            "AuthLogout",
	KindClipboardPush:         "ClipboardPush",
	KindClipboardPushAck:      "ClipboardPushAck",
	KindClipboardPull:         "ClipboardPull",
	KindClipboardHistory:      "ClipboardHistory",
	KindClipboardBroadcast:    "ClipboardBroadcast",
	KindClipboardSearch:       "ClipboardSearch",
	KindClipboardSearchResult: "ClipboardSearchResult",
	KindClipboardMoveToTop:    "ClipboardMoveToTop",
	KindClipboardMoveToTopAck: "ClipboardMoveToTopAck",
	KindClipboardDelete:       "ClipboardDelete",
	KindClipboardDeleteAck:    "ClipboardDeleteAck",
	KindError:                 "Error",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Valid reports whether the kind code belongs to the catalog.
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}
