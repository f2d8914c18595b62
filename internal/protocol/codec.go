package protocol

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// The payload codec uses the protocol-buffer wire format (hand-rolled over
// encoding/protowire). Field numbers are the versioned schema: they must
// never be reused or renumbered, only appended to. Zero values are omitted
// on encode and implied on decode, as in proto3.
//
// Envelope schema:
//
//	1: seq          varint
//	2: sent_at_ms   varint (unix milliseconds)
//	3: payload      bytes  (kind-specific message, schema per payload type)

// ErrUnknownKind is returned when a frame carries a kind code outside the
// catalog. Fatal for the connection.
var ErrUnknownKind = errors.New("unknown message kind")

// errTruncated wraps protowire parse failures.
func errTruncated(n int) error {
	if err := protowire.ParseError(n); err != nil {
		return err
	}
	return errors.New("malformed field")
}

// Marshal encodes an envelope into frame payload bytes. The frame kind code
// is taken from env.Kind() by the caller.
func Marshal(env *Envelope) ([]byte, error) {
	if env.Payload == nil {
		return nil, errors.New("envelope has no payload")
	}

	body, err := marshalPayload(env.Payload)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = appendVarintField(b, 1, env.Seq)
	b = appendVarintField(b, 2, uint64(env.SentAt.UnixMilli()))
	if len(body) > 0 {
		b = protowire.AppendTag(b, 3, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	}
	return b, nil
}

// Unmarshal decodes frame payload bytes for the given kind. Unknown kinds
// are rejected, not ignored.
func Unmarshal(kind Kind, data []byte) (*Envelope, error) {
	payload := newPayload(kind)
	if payload == nil {
		return nil, fmt.Errorf("%w: 0x%04x", ErrUnknownKind, uint16(kind))
	}

	env := &Envelope{Payload: payload}
	var sentMillis int64

	err := walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.VarintType:
			env.Seq = decodeVarint(v)
		case num == 2 && typ == protowire.VarintType:
			sentMillis = int64(decodeVarint(v))
		case num == 3 && typ == protowire.BytesType:
			return unmarshalPayload(payload, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	env.SentAt = time.UnixMilli(sentMillis).UTC()
	return env, nil
}

// newPayload returns a zero payload value for the kind, or nil if the kind
// is not in the catalog.
func newPayload(kind Kind) Payload {
	switch kind {
	case KindConnect:
		return &ConnectPayload{}
	case KindConnectAck:
		return &ConnectAckPayload{}
	case KindDisconnect:
		return &DisconnectPayload{}
	case KindHeartbeat:
		return &HeartbeatPayload{}
	case KindHeartbeatAck:
		return &HeartbeatAckPayload{}
	case KindAuthLogin:
		return &AuthLoginPayload{}
	case KindAuthRegister:
		return &AuthRegisterPayload{}
	case KindAuthApiKey:
		return &AuthApiKeyPayload{}
	case KindAuthResponse:
		return &AuthResponsePayload{}
	case KindAuthLogout:
		return &AuthLogoutPayload{}
	case KindClipboardPush:
		return &ClipboardPushPayload{}
	case KindClipboardPushAck:
		return &ClipboardPushAckPayload{}
	case KindClipboardPull:
		return &ClipboardPullPayload{}
	case KindClipboardHistory:
		return &ClipboardHistoryPayload{}
	case KindClipboardBroadcast:
		return &ClipboardBroadcastPayload{}
	case KindClipboardSearch:
		return &ClipboardSearchPayload{}
	case KindClipboardSearchResult:
		return &ClipboardSearchResultPayload{}
	case KindClipboardMoveToTop:
		return &ClipboardMoveToTopPayload{}
	case KindClipboardMoveToTopAck:
		return &ClipboardMoveToTopAckPayload{}
	case KindClipboardDelete:
		return &ClipboardDeletePayload{}
	case KindClipboardDeleteAck:
		return &ClipboardDeleteAckPayload{}
	case KindError:
		return &ErrorPayload{}
	default:
		return nil
	}
}

// --- encode helpers ---

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBoolField(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendMessageField(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

// --- decode helpers ---

func decodeVarint(v []byte) uint64 {
	x, _ := protowire.ConsumeVarint(v)
	return x
}

// walkFields iterates the top-level fields of a wire message, invoking visit
// with each field's number, type, and raw value bytes (for varints, the
// varint bytes; for bytes fields, the unwrapped contents). Unknown fields
// are skipped so older peers tolerate schema growth.
func walkFields(data []byte, visit func(num protowire.Number, typ protowire.Type, v []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errTruncated(n)
		}
		data = data[n:]

		var value []byte
		switch typ {
		case protowire.VarintType:
			_, n = protowire.ConsumeVarint(data)
			if n < 0 {
				return errTruncated(n)
			}
			value = data[:n]
		case protowire.BytesType:
			v, vn := protowire.ConsumeBytes(data)
			if vn < 0 {
				return errTruncated(vn)
			}
			value = v
			n = vn
		case protowire.Fixed32Type:
			_, n = protowire.ConsumeFixed32(data)
			if n < 0 {
				return errTruncated(n)
			}
			value = data[:n]
		case protowire.Fixed64Type:
			_, n = protowire.ConsumeFixed64(data)
			if n < 0 {
				return errTruncated(n)
			}
			value = data[:n]
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errTruncated(n)
			}
		}
		data = data[n:]

		if err := visit(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}

// --- entry ---

// Entry schema:
//
//	1: id            string
//	2: kind          varint
//	3: content       bytes
//	4: preview       string
//	5: content_hash  string
//	6: device_label  string
//	7: created_at_ms varint
//	8: synced_at_ms  varint
//	9: storage_key   string
//	10: content_url  string
func marshalEntry(e *Entry) []byte {
	var b []byte
	b = appendStringField(b, 1, e.ID)
	b = appendVarintField(b, 2, uint64(e.Kind))
	b = appendBytesField(b, 3, e.Content)
	b = appendStringField(b, 4, e.Preview)
	b = appendStringField(b, 5, e.ContentHash)
	b = appendStringField(b, 6, e.DeviceLabel)
	b = appendVarintField(b, 7, uint64(e.CreatedAtMillis))
	b = appendVarintField(b, 8, uint64(e.SyncedAtMillis))
	b = appendStringField(b, 9, e.StorageKey)
	b = appendStringField(b, 10, e.ContentURL)
	return b
}

func unmarshalEntry(e *Entry, data []byte) error {
	return walkFields(data, func(num protowire.Number, typ protowire.Type, v []byte) error {
		switch {
		case num == 1 && typ == protowire.BytesType:
			e.ID = string(v)
		case num == 2 && typ == protowire.VarintType:
			e.Kind = EntryKind(decodeVarint(v))
		case num == 3 && typ == protowire.BytesType:
			e.Content = append([]byte(nil), v...)
		case num == 4 && typ == protowire.BytesType:
			e.Preview = string(v)
		case num == 5 && typ == protowire.BytesType:
			e.ContentHash = string(v)
		case num == 6 && typ == protowire.BytesType:
			e.DeviceLabel = string(v)
		case num == 7 && typ == protowire.VarintType:
			e.CreatedAtMillis = int64(decodeVarint(v))
		case num == 8 && typ == protowire.VarintType:
			e.SyncedAtMillis = int64(decodeVarint(v))
		case num == 9 && typ == protowire.BytesType:
			e.StorageKey = string(v)
		case num == 10 && typ == protowire.BytesType:
			e.ContentURL = string(v)
		}
		return nil
	})
}

// --- payloads ---

func marshalPayload(p Payload) ([]byte, error) {
	var b []byte
	switch v := p.(type) {
	case *ConnectPayload:
		b = appendStringField(b, 1, v.ClientVersion)
		b = appendStringField(b, 2, v.DeviceID)
		b = appendStringField(b, 3, v.DeviceName)
		b = appendStringField(b, 4, v.Platform)
	case *ConnectAckPayload:
		b = appendStringField(b, 1, v.ServerVersion)
		b = appendBoolField(b, 2, v.AuthRequired)
	case *DisconnectPayload:
		b = appendStringField(b, 1, v.Reason)
	case *HeartbeatPayload, *HeartbeatAckPayload, *AuthLogoutPayload:
		// no fields
	case *AuthLoginPayload:
		b = appendStringField(b, 1, v.Username)
		b = appendStringField(b, 2, v.Password)
		b = appendStringField(b, 3, v.ResumeToken)
	case *AuthRegisterPayload:
		b = appendStringField(b, 1, v.Username)
		b = appendStringField(b, 2, v.Password)
	case *AuthApiKeyPayload:
		b = appendStringField(b, 1, v.Key)
	case *AuthResponsePayload:
		b = appendBoolField(b, 1, v.Success)
		b = appendVarintField(b, 2, uint64(v.Code))
		b = appendStringField(b, 3, v.Message)
		b = appendStringField(b, 4, v.AccountID)
		b = appendStringField(b, 5, v.ResumeToken)
	case *ClipboardPushPayload:
		b = appendMessageField(b, 1, marshalEntry(&v.Entry))
	case *ClipboardPushAckPayload:
		b = appendMessageField(b, 1, marshalEntry(&v.Entry))
		b = appendBoolField(b, 2, v.Deduplicated)
	case *ClipboardPullPayload:
		b = appendVarintField(b, 1, uint64(v.Limit))
		b = appendVarintField(b, 2, uint64(v.SinceMillis))
		b = appendVarintField(b, 3, uint64(v.Offset))
	case *ClipboardHistoryPayload:
		for i := range v.Entries {
			b = appendMessageField(b, 1, marshalEntry(&v.Entries[i]))
		}
		b = appendBoolField(b, 2, v.HasMore)
		b = appendVarintField(b, 3, uint64(v.TotalCount))
	case *ClipboardBroadcastPayload:
		b = appendMessageField(b, 1, marshalEntry(&v.Entry))
		b = appendStringField(b, 2, v.OriginDevice)
	case *ClipboardSearchPayload:
		b = appendStringField(b, 1, v.Query)
		b = appendVarintField(b, 2, uint64(v.Limit))
	case *ClipboardSearchResultPayload:
		for i := range v.Entries {
			b = appendMessageField(b, 1, marshalEntry(&v.Entries[i]))
		}
		b = appendVarintField(b, 2, uint64(v.TotalMatches))
		b = appendBoolField(b, 3, v.HasMore)
	case *ClipboardMoveToTopPayload:
		b = appendStringField(b, 1, v.ID)
	case *ClipboardMoveToTopAckPayload:
		b = appendStringField(b, 1, v.ID)
		b = appendVarintField(b, 2, uint64(v.CreatedAtMillis))
	case *ClipboardDeletePayload:
		b = appendStringField(b, 1, v.ID)
	case *ClipboardDeleteAckPayload:
		b = appendStringField(b, 1, v.ID)
	case *ErrorPayload:
		b = appendVarintField(b, 1, uint64(v.Code))
		b = appendStringField(b, 2, v.Message)
	default:
		return nil, fmt.Errorf("unsupported payload type %T", p)
	}
	return b, nil
}

func unmarshalPayload(p Payload, data []byte) error {
	switch v := p.(type) {
	case *ConnectPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.ClientVersion = string(val)
			case num == 2 && typ == protowire.BytesType:
				v.DeviceID = string(val)
			case num == 3 && typ == protowire.BytesType:
				v.DeviceName = string(val)
			case num == 4 && typ == protowire.BytesType:
				v.Platform = string(val)
			}
			return nil
		})
	case *ConnectAckPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.ServerVersion = string(val)
			case num == 2 && typ == protowire.VarintType:
				v.AuthRequired = protowire.DecodeBool(decodeVarint(val))
			}
			return nil
		})
	case *DisconnectPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				v.Reason = string(val)
			}
			return nil
		})
	case *HeartbeatPayload, *HeartbeatAckPayload, *AuthLogoutPayload:
		return nil
	case *AuthLoginPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.Username = string(val)
			case num == 2 && typ == protowire.BytesType:
				v.Password = string(val)
			case num == 3 && typ == protowire.BytesType:
				v.ResumeToken = string(val)
			}
			return nil
		})
	case *AuthRegisterPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.Username = string(val)
			case num == 2 && typ == protowire.BytesType:
				v.Password = string(val)
			}
			return nil
		})
	case *AuthApiKeyPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				v.Key = string(val)
			}
			return nil
		})
	case *AuthResponsePayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.VarintType:
				v.Success = protowire.DecodeBool(decodeVarint(val))
			case num == 2 && typ == protowire.VarintType:
				v.Code = ErrorCode(decodeVarint(val))
			case num == 3 && typ == protowire.BytesType:
				v.Message = string(val)
			case num == 4 && typ == protowire.BytesType:
				v.AccountID = string(val)
			case num == 5 && typ == protowire.BytesType:
				v.ResumeToken = string(val)
			}
			return nil
		})
	case *ClipboardPushPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				return unmarshalEntry(&v.Entry, val)
			}
			return nil
		})
	case *ClipboardPushAckPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				return unmarshalEntry(&v.Entry, val)
			case num == 2 && typ == protowire.VarintType:
				v.Deduplicated = protowire.DecodeBool(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardPullPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.VarintType:
				v.Limit = uint32(decodeVarint(val))
			case num == 2 && typ == protowire.VarintType:
				v.SinceMillis = int64(decodeVarint(val))
			case num == 3 && typ == protowire.VarintType:
				v.Offset = uint32(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardHistoryPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				var e Entry
				if err := unmarshalEntry(&e, val); err != nil {
					return err
				}
				v.Entries = append(v.Entries, e)
			case num == 2 && typ == protowire.VarintType:
				v.HasMore = protowire.DecodeBool(decodeVarint(val))
			case num == 3 && typ == protowire.VarintType:
				v.TotalCount = uint32(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardBroadcastPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				return unmarshalEntry(&v.Entry, val)
			case num == 2 && typ == protowire.BytesType:
				v.OriginDevice = string(val)
			}
			return nil
		})
	case *ClipboardSearchPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.Query = string(val)
			case num == 2 && typ == protowire.VarintType:
				v.Limit = uint32(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardSearchResultPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				var e Entry
				if err := unmarshalEntry(&e, val); err != nil {
					return err
				}
				v.Entries = append(v.Entries, e)
			case num == 2 && typ == protowire.VarintType:
				v.TotalMatches = uint32(decodeVarint(val))
			case num == 3 && typ == protowire.VarintType:
				v.HasMore = protowire.DecodeBool(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardMoveToTopPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				v.ID = string(val)
			}
			return nil
		})
	case *ClipboardMoveToTopAckPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.BytesType:
				v.ID = string(val)
			case num == 2 && typ == protowire.VarintType:
				v.CreatedAtMillis = int64(decodeVarint(val))
			}
			return nil
		})
	case *ClipboardDeletePayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				v.ID = string(val)
			}
			return nil
		})
	case *ClipboardDeleteAckPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			if num == 1 && typ == protowire.BytesType {
				v.ID = string(val)
			}
			return nil
		})
	case *ErrorPayload:
		return walkFields(data, func(num protowire.Number, typ protowire.Type, val []byte) error {
			switch {
			case num == 1 && typ == protowire.VarintType:
				v.Code = ErrorCode(decodeVarint(val))
			case num == 2 && typ == protowire.BytesType:
				v.Message = string(val)
			}
			return nil
		})
	default:
		return fmt.Errorf("unsupported payload type %T", p)
	}
}
