package entity

// Channel is the participant's delivery channel.
type Channel string

const (
	ChannelChat     Channel = "chat"
	ChannelSMS      Channel = "sms"
	ChannelWhatsApp Channel = "whatsapp"
)

// Participant is a cached conversation member. Identity is empty for
// non-chat channels.
type Participant struct {
	Sid                  string
	ConversationSid      string
	Identity             string
	Channel              Channel
	Attributes           string
	LastReadMessageIndex int64

	// IsTyping is ephemeral and never persisted.
	IsTyping bool
}

// ParticipantPatch is a partial participant update keyed by Sid.
type ParticipantPatch struct {
	Sid string

	ConversationSid      Field[string]
	Identity             Field[string]
	Channel              Field[Channel]
	Attributes           Field[string]
	LastReadMessageIndex Field[int64]
	IsTyping             Field[bool]
}

func (p ParticipantPatch) Key() string {
	return p.Sid
}

func (p ParticipantPatch) Validate() error {
	if p.Sid == "" {
		return missingKey(KindParticipant, "sid")
	}
	return nil
}

func (p ParticipantPatch) Apply(pt *Participant) {
	pt.Sid = p.Sid
	p.ConversationSid.ApplyTo(&pt.ConversationSid)
	p.Identity.ApplyTo(&pt.Identity)
	p.Channel.ApplyTo(&pt.Channel)
	p.Attributes.ApplyTo(&pt.Attributes)
	p.LastReadMessageIndex.ApplyTo(&pt.LastReadMessageIndex)
	p.IsTyping.ApplyTo(&pt.IsTyping)
}

// ValidateParticipant checks a merged participant row.
func ValidateParticipant(p Participant) error {
	if p.ConversationSid == "" {
		return emptyField(KindParticipant, "conversation sid")
	}
	return nil
}
