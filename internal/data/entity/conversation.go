package entity

import "time"

// NotificationLevel is the conversation notification preference.
type NotificationLevel string

const (
	NotificationDefault NotificationLevel = "default"
	NotificationMuted   NotificationLevel = "muted"
)

// LastMessage is the conversation's last-message preview.
type LastMessage struct {
	Sid    string
	Author string
	Type   string
	Index  int64
	Date   time.Time
}

// IsZero reports whether no preview is known.
func (l LastMessage) IsZero() bool {
	return l.Sid == "" && l.Date.IsZero()
}

// Conversation is a cached conversation.
//
// ParticipantsCount, MessagesCount and UnreadCount are refreshed
// independently and may lag the message list.
type Conversation struct {
	Sid          string
	FriendlyName string
	UniqueName   string
	DateCreated  time.Time
	DateUpdated  time.Time
	CreatedBy    string

	ParticipantsCount int
	MessagesCount     int
	UnreadCount       int

	NotificationLevel NotificationLevel
	LastMessage       LastMessage
	Attributes        string
}

// Muted reports whether notifications are muted.
func (c Conversation) Muted() bool {
	return c.NotificationLevel == NotificationMuted
}

// ConversationPatch is a partial conversation update keyed by Sid.
type ConversationPatch struct {
	Sid string

	FriendlyName Field[string]
	UniqueName   Field[string]
	DateCreated  Field[time.Time]
	DateUpdated  Field[time.Time]
	CreatedBy    Field[string]

	ParticipantsCount Field[int]
	MessagesCount     Field[int]
	UnreadCount       Field[int]

	NotificationLevel Field[NotificationLevel]
	LastMessage       Field[LastMessage]
	Attributes        Field[string]
}

func (p ConversationPatch) Key() string {
	return p.Sid
}

func (p ConversationPatch) Validate() error {
	if p.Sid == "" {
		return missingKey(KindConversation, "sid")
	}
	return nil
}

func (p ConversationPatch) Apply(c *Conversation) {
	c.Sid = p.Sid
	p.FriendlyName.ApplyTo(&c.FriendlyName)
	p.UniqueName.ApplyTo(&c.UniqueName)
	p.DateCreated.ApplyTo(&c.DateCreated)
	p.DateUpdated.ApplyTo(&c.DateUpdated)
	p.CreatedBy.ApplyTo(&c.CreatedBy)
	p.ParticipantsCount.ApplyTo(&c.ParticipantsCount)
	p.MessagesCount.ApplyTo(&c.MessagesCount)
	p.UnreadCount.ApplyTo(&c.UnreadCount)
	p.NotificationLevel.ApplyTo(&c.NotificationLevel)
	p.LastMessage.ApplyTo(&c.LastMessage)
	p.Attributes.ApplyTo(&c.Attributes)
}

// Patch returns a patch that sets every field of c.
func (c Conversation) Patch() ConversationPatch {
	return ConversationPatch{
		Sid:               c.Sid,
		FriendlyName:      Set(c.FriendlyName),
		UniqueName:        Set(c.UniqueName),
		DateCreated:       Set(c.DateCreated),
		DateUpdated:       Set(c.DateUpdated),
		CreatedBy:         Set(c.CreatedBy),
		ParticipantsCount: Set(c.ParticipantsCount),
		MessagesCount:     Set(c.MessagesCount),
		UnreadCount:       Set(c.UnreadCount),
		NotificationLevel: Set(c.NotificationLevel),
		LastMessage:       Set(c.LastMessage),
		Attributes:        Set(c.Attributes),
	}
}
