package protocol

import "time"

// ErrorCode is the stable numeric code carried by Error payloads and failed
// AuthResponse payloads.
type ErrorCode uint32

const (
	CodeProtocol   ErrorCode = 1
	CodeAuth       ErrorCode = 2
	CodeValidation ErrorCode = 3
	CodeNotFound   ErrorCode = 4
	CodeInternal   ErrorCode = 5
)

// EntryKind classifies clipboard content on the wire.
type EntryKind uint32

const (
	EntryKindText  EntryKind = 1
	EntryKindImage EntryKind = 2
	EntryKindFile  EntryKind = 3
)

func (k EntryKind) String() string {
	switch k {
	case EntryKindText:
		return "text"
	case EntryKindImage:
		return "image"
	case EntryKindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Entry is the wire representation of one clipboard entry. Timestamps travel
// as Unix milliseconds. Content may be empty when the payload has been
// offloaded to external storage, in which case StorageKey is set and
// ContentURL may carry a temporary download URL.
type Entry struct {
	ID              string
	Kind            EntryKind
	Content         []byte
	Preview         string
	ContentHash     string
	DeviceLabel     string
	CreatedAtMillis int64
	SyncedAtMillis  int64
	StorageKey      string
	ContentURL      string
}

// Payload is the closed set of typed message payloads. Exactly one payload
// type exists per kind; the envelope's kind is derived from its payload so
// the two can never disagree.
type Payload interface {
	kind() Kind
}

// Envelope is one protocol message: a kind (implied by the payload), a
// per-endpoint monotonic sequence number, a send timestamp, and the payload.
type Envelope struct {
	Seq     uint64
	SentAt  time.Time
	Payload Payload
}

// Kind returns the message kind implied by the envelope's payload.
func (e *Envelope) Kind() Kind {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.kind()
}

// NewEnvelope wraps a payload with the current time. The sequence number is
// assigned by the sending endpoint just before the frame is written.
func NewEnvelope(p Payload) *Envelope {
	return &Envelope{SentAt: time.Now().UTC(), Payload: p}
}

// Session lifecycle payloads.

type ConnectPayload struct {
	ClientVersion string
	DeviceID      string
	DeviceName    string
	Platform      string
}

type ConnectAckPayload struct {
	ServerVersion string
	AuthRequired  bool
}

type DisconnectPayload struct {
	Reason string
}

type HeartbeatPayload struct{}

type HeartbeatAckPayload struct{}

// Authentication payloads.

type AuthLoginPayload struct {
	Username string
	Password string
	// ResumeToken, when set, replaces the password: it is a signed token from
	// a previous successful AuthResponse used for fast reconnects.
	ResumeToken string
}

type AuthRegisterPayload struct {
	Username string
	Password string
}

type AuthApiKeyPayload struct {
	Key string
}

type AuthResponsePayload struct {
	Success     bool
	Code        ErrorCode
	Message     string
	AccountID   string
	ResumeToken string
}

type AuthLogoutPayload struct{}

// Clipboard operation payloads.

type ClipboardPushPayload struct {
	Entry Entry
}

type ClipboardPushAckPayload struct {
	Entry Entry
	// Deduplicated is true when the push matched an existing content hash and
	// bumped it instead of creating a new record.
	Deduplicated bool
}

type ClipboardPullPayload struct {
	Limit uint32
	// SinceMillis, when nonzero, restricts results to entries created after
	// this Unix-millisecond timestamp (incremental sync).
	SinceMillis int64
	// Offset skips that many entries from the top of the ordering (paging).
	Offset uint32
}

type ClipboardHistoryPayload struct {
	Entries    []Entry
	HasMore    bool
	TotalCount uint32
}

type ClipboardBroadcastPayload struct {
	Entry        Entry
	OriginDevice string
}

type ClipboardSearchPayload struct {
	Query string
	Limit uint32
}

type ClipboardSearchResultPayload struct {
	Entries      []Entry
	TotalMatches uint32
	HasMore      bool
}

type ClipboardMoveToTopPayload struct {
	ID string
}

type ClipboardMoveToTopAckPayload struct {
	ID              string
	CreatedAtMillis int64
}

type ClipboardDeletePayload struct {
	ID string
}

type ClipboardDeleteAckPayload struct {
	ID string
}

type ErrorPayload struct {
	Code    ErrorCode
	Message string
}

func (*ConnectPayload) kind() Kind               { return KindConnect }
func (*ConnectAckPayload) kind() Kind            { return KindConnectAck }
func (*DisconnectPayload) kind() Kind            { return KindDisconnect }
func (*HeartbeatPayload) kind() Kind             { return KindHeartbeat }
func (*HeartbeatAckPayload) kind() Kind          { return KindHeartbeatAck }
func (*AuthLoginPayload) kind() Kind             { return KindAuthLogin }
func (*AuthRegisterPayload) kind() Kind          { return KindAuthRegister }
func (*AuthApiKeyPayload) kind() Kind            { return KindAuthApiKey }
func (*AuthResponsePayload) kind() Kind          { return KindAuthResponse }
func (*AuthLogoutPayload) kind() Kind            { return KindAuthLogout }
func (*ClipboardPushPayload) kind() Kind         { return KindClipboardPush }
func (*ClipboardPushAckPayload) kind() Kind      { return KindClipboardPushAck }
func (*ClipboardPullPayload) kind() Kind         { return KindClipboardPull }
func (*ClipboardHistoryPayload) kind() Kind      { return KindClipboardHistory }
func (*ClipboardBroadcastPayload) kind() Kind    { return KindClipboardBroadcast }
func (*ClipboardSearchPayload) kind() Kind       { return KindClipboardSearch }
func (*ClipboardSearchResultPayload) kind() Kind { return KindClipboardSearchResult }
func (*ClipboardMoveToTopPayload) kind() Kind    { return KindClipboardMoveToTop }
func (*ClipboardMoveToTopAckPayload) kind() Kind { return KindClipboardMoveToTopAck }
func (*ClipboardDeletePayload) kind() Kind       { return KindClipboardDelete }
func (*ClipboardDeleteAckPayload) kind() Kind    { return KindClipboardDeleteAck }
func (*ErrorPayload) kind() Kind                 { return KindError }
