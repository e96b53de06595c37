package entity

// MediaCategory tells where an attachment is used.
type MediaCategory string

const (
	MediaCategoryMedia   MediaCategory = "media"
	MediaCategoryBody    MediaCategory = "body"
	MediaCategoryHistory MediaCategory = "history"
)

// Media is an attachment descriptor.
type Media struct {
	Sid             string
	MessageSid      string
	ConversationSid string
	Filename        string
	ContentType     string
	Size            int64
	Category        MediaCategory
}

// NewMedia builds a validated attachment. Attachments without sid, filename
// or content type are rejected here and never reach the store.
func NewMedia(sid, messageSid, conversationSid, filename, contentType string, size int64, category MediaCategory) (Media, error) {
	m := Media{
		Sid:             sid,
		MessageSid:      messageSid,
		ConversationSid: conversationSid,
		Filename:        filename,
		ContentType:     contentType,
		Size:            size,
		Category:        category,
	}
	if m.Category == "" {
		m.Category = MediaCategoryMedia
	}
	if err := ValidateMedia(m); err != nil {
		return Media{}, err
	}
	return m, nil
}

// ValidateMedia enforces the attachment invariants.
func ValidateMedia(m Media) error {
	switch {
	case m.Sid == "":
		return missingKey(KindMedia, "sid")
	case m.Filename == "":
		return emptyField(KindMedia, "filename")
	case m.ContentType == "":
		return emptyField(KindMedia, "content type")
	}
	return nil
}

// MediaPatch is a partial attachment update keyed by Sid.
type MediaPatch struct {
	Sid string

	MessageSid      Field[string]
	ConversationSid Field[string]
	Filename        Field[string]
	ContentType     Field[string]
	Size            Field[int64]
	Category        Field[MediaCategory]
}

func (p MediaPatch) Key() string {
	return p.Sid
}

func (p MediaPatch) Validate() error {
	if p.Sid == "" {
		return missingKey(KindMedia, "sid")
	}
	return nil
}

func (p MediaPatch) Apply(m *Media) {
	m.Sid = p.Sid
	p.MessageSid.ApplyTo(&m.MessageSid)
	p.ConversationSid.ApplyTo(&m.ConversationSid)
	p.Filename.ApplyTo(&m.Filename)
	p.ContentType.ApplyTo(&m.ContentType)
	p.Size.ApplyTo(&m.Size)
	p.Category.ApplyTo(&m.Category)
}

// Patch returns a patch that sets every field of m.
func (m Media) Patch() MediaPatch {
	return MediaPatch{
		Sid:             m.Sid,
		MessageSid:      Set(m.MessageSid),
		ConversationSid: Set(m.ConversationSid),
		Filename:        Set(m.Filename),
		ContentType:     Set(m.ContentType),
		Size:            Set(m.Size),
		Category:        Set(m.Category),
	}
}
