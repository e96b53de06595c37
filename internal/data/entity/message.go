package entity

import (
	"time"

	"chatcache/internal/data/reaction"
)

// Direction tells whether a message was authored locally.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// SendStatus is the outbound delivery state.
type SendStatus string

const (
	SendStatusSending SendStatus = "sending"
	SendStatusSent    SendStatus = "sent"
	SendStatusError   SendStatus = "error"
)

// MediaStatus is the attachment transfer state.
type MediaStatus string

const (
	MediaStatusNone        MediaStatus = ""
	MediaStatusUploading   MediaStatus = "uploading"
	MediaStatusUploaded    MediaStatus = "uploaded"
	MediaStatusDownloading MediaStatus = "downloading"
	MediaStatusDownloaded  MediaStatus = "downloaded"
	MediaStatusError       MediaStatus = "error"
)

// Message is a cached message.
//
// UUID is the client identifier and the table key. It is stable across
// retries and exists before the server assigns Sid and Index.
type Message struct {
	UUID            string
	Sid             string
	ConversationSid string
	Author          string
	Body            string
	Direction       Direction
	DateCreated     time.Time
	DateUpdated     time.Time
	Index           int64
	SendStatus      SendStatus

	MediaSid           string
	MediaStatus        MediaStatus
	MediaFilename      string
	MediaContentType   string
	MediaSize          int64
	MediaUploadedBytes int64
	MediaLocalPath     string

	// Attributes is the raw JSON object blob. Reactions live under
	// "reactions".
	Attributes string
}

// Confirmed reports whether the server has assigned a sid.
func (m Message) Confirmed() bool {
	return m.Sid != ""
}

// HasMedia reports whether the message carries or awaits an attachment.
func (m Message) HasMedia() bool {
	return m.MediaSid != "" || m.MediaFilename != ""
}

// Reactions decodes the reaction set. A malformed blob yields an empty set.
func (m Message) Reactions() reaction.Set {
	s, _ := reaction.FromAttributes(m.Attributes)
	return s
}

// MessagePatch is a partial message update. It targets UUID when known and
// otherwise resolves through Sid.
type MessagePatch struct {
	UUID string

	Sid             Field[string]
	ConversationSid Field[string]
	Author          Field[string]
	Body            Field[string]
	Direction       Field[Direction]
	DateCreated     Field[time.Time]
	DateUpdated     Field[time.Time]
	Index           Field[int64]
	SendStatus      Field[SendStatus]

	MediaSid           Field[string]
	MediaStatus        Field[MediaStatus]
	MediaFilename      Field[string]
	MediaContentType   Field[string]
	MediaSize          Field[int64]
	MediaUploadedBytes Field[int64]
	MediaLocalPath     Field[string]

	Attributes Field[string]
}

func (p MessagePatch) Key() string {
	return p.UUID
}

// AltKey returns the sid carried by the patch, if any.
func (p MessagePatch) AltKey() string {
	sid, _ := p.Sid.Get()
	return sid
}

func (p MessagePatch) Validate() error {
	if p.UUID == "" && p.AltKey() == "" {
		return missingKey(KindMessage, "uuid")
	}
	return nil
}

func (p MessagePatch) Apply(m *Message) {
	if p.UUID != "" {
		m.UUID = p.UUID
	}
	p.Sid.ApplyTo(&m.Sid)
	p.ConversationSid.ApplyTo(&m.ConversationSid)
	p.Author.ApplyTo(&m.Author)
	p.Body.ApplyTo(&m.Body)
	p.Direction.ApplyTo(&m.Direction)
	p.DateCreated.ApplyTo(&m.DateCreated)
	p.DateUpdated.ApplyTo(&m.DateUpdated)
	p.Index.ApplyTo(&m.Index)
	p.SendStatus.ApplyTo(&m.SendStatus)
	p.MediaSid.ApplyTo(&m.MediaSid)
	p.MediaStatus.ApplyTo(&m.MediaStatus)
	p.MediaFilename.ApplyTo(&m.MediaFilename)
	p.MediaContentType.ApplyTo(&m.MediaContentType)
	p.MediaSize.ApplyTo(&m.MediaSize)
	p.MediaUploadedBytes.ApplyTo(&m.MediaUploadedBytes)
	p.MediaLocalPath.ApplyTo(&m.MediaLocalPath)
	p.Attributes.ApplyTo(&m.Attributes)
}

// ValidateMessage checks a merged message row.
func ValidateMessage(m Message) error {
	if m.UUID == "" {
		return missingKey(KindMessage, "uuid")
	}
	if m.ConversationSid == "" {
		return emptyField(KindMessage, "conversation sid")
	}
	return nil
}
