package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"chatcache/internal/data/entity"
)

// ErrMalformedEvent is returned for events whose fields cannot be decoded.
var ErrMalformedEvent = errors.New("malformed event")

// fieldSet reads optional camelCase fields. Absent fields decode to an unset
// entity.Field; null decodes to the zero value, set.
type fieldSet struct {
	m map[string]*structpb.Value
}

func newFieldSet(s *structpb.Struct) fieldSet {
	return fieldSet{m: s.GetFields()}
}

func malformed(name, want string) error {
	return fmt.Errorf("%w: field %q is not a %s", ErrMalformedEvent, name, want)
}

func isNull(v *structpb.Value) bool {
	_, ok := v.GetKind().(*structpb.Value_NullValue)
	return ok
}

func (f fieldSet) str(name string) (entity.Field[string], error) {
	v, ok := f.m[name]
	if !ok {
		return entity.Field[string]{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return entity.Set(""), nil
	case *structpb.Value_StringValue:
		return entity.Set(k.StringValue), nil
	}
	return entity.Field[string]{}, malformed(name, "string")
}

func (f fieldSet) integer(name string) (entity.Field[int64], error) {
	v, ok := f.m[name]
	if !ok {
		return entity.Field[int64]{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return entity.Set(int64(0)), nil
	case *structpb.Value_NumberValue:
		n := k.NumberValue
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return entity.Field[int64]{}, malformed(name, "integer")
		}
		return entity.Set(int64(n)), nil
	}
	return entity.Field[int64]{}, malformed(name, "integer")
}

func (f fieldSet) count(name string) (entity.Field[int], error) {
	n, err := f.integer(name)
	if err != nil || !n.IsSet() {
		return entity.Field[int]{}, err
	}
	v, _ := n.Get()
	return entity.Set(int(v)), nil
}

func (f fieldSet) boolean(name string) (entity.Field[bool], error) {
	v, ok := f.m[name]
	if !ok {
		return entity.Field[bool]{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return entity.Set(false), nil
	case *structpb.Value_BoolValue:
		return entity.Set(k.BoolValue), nil
	}
	return entity.Field[bool]{}, malformed(name, "bool")
}

// timestamp accepts RFC 3339 strings and unix milliseconds.
func (f fieldSet) timestamp(name string) (entity.Field[time.Time], error) {
	v, ok := f.m[name]
	if !ok {
		return entity.Field[time.Time]{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return entity.Set(time.Time{}), nil
	case *structpb.Value_StringValue:
		t, err := time.Parse(time.RFC3339Nano, k.StringValue)
		if err != nil {
			return entity.Field[time.Time]{}, malformed(name, "timestamp")
		}
		return entity.Set(t), nil
	case *structpb.Value_NumberValue:
		return entity.Set(time.UnixMilli(int64(k.NumberValue))), nil
	}
	return entity.Field[time.Time]{}, malformed(name, "timestamp")
}

// object returns a nested field set. present is false when absent; null is
// present with an empty set.
func (f fieldSet) object(name string) (sub fieldSet, present, null bool, err error) {
	v, ok := f.m[name]
	if !ok {
		return fieldSet{}, false, false, nil
	}
	if isNull(v) {
		return fieldSet{}, true, true, nil
	}
	s := v.GetStructValue()
	if s == nil {
		return fieldSet{}, true, false, malformed(name, "object")
	}
	return newFieldSet(s), true, false, nil
}

// attributes accepts a JSON object or its string encoding.
func (f fieldSet) attributes(name string) (entity.Field[string], error) {
	v, ok := f.m[name]
	if !ok {
		return entity.Field[string]{}, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return entity.Set(""), nil
	case *structpb.Value_StringValue:
		if k.StringValue != "" && !json.Valid([]byte(k.StringValue)) {
			return entity.Field[string]{}, malformed(name, "JSON document")
		}
		return entity.Set(k.StringValue), nil
	case *structpb.Value_StructValue:
		data, err := json.Marshal(k.StructValue.AsMap())
		if err != nil {
			return entity.Field[string]{}, malformed(name, "JSON object")
		}
		return entity.Set(string(data)), nil
	}
	return entity.Field[string]{}, malformed(name, "JSON object")
}

func decodeConversation(sid string, f fieldSet) (entity.ConversationPatch, error) {
	p := entity.ConversationPatch{Sid: sid}
	var err error
	if p.FriendlyName, err = f.str("friendlyName"); err != nil {
		return p, err
	}
	if p.UniqueName, err = f.str("uniqueName"); err != nil {
		return p, err
	}
	if p.DateCreated, err = f.timestamp("dateCreated"); err != nil {
		return p, err
	}
	if p.DateUpdated, err = f.timestamp("dateUpdated"); err != nil {
		return p, err
	}
	if p.CreatedBy, err = f.str("createdBy"); err != nil {
		return p, err
	}
	if p.ParticipantsCount, err = f.count("participantsCount"); err != nil {
		return p, err
	}
	if p.MessagesCount, err = f.count("messagesCount"); err != nil {
		return p, err
	}
	if p.UnreadCount, err = f.count("unreadMessagesCount"); err != nil {
		return p, err
	}
	level, err := f.str("notificationLevel")
	if err != nil {
		return p, err
	}
	if v, ok := level.Get(); ok {
		if v == "" {
			v = string(entity.NotificationDefault)
		}
		p.NotificationLevel = entity.Set(entity.NotificationLevel(v))
	}
	if p.Attributes, err = f.attributes("attributes"); err != nil {
		return p, err
	}

	last, present, null, err := f.object("lastMessage")
	switch {
	case err != nil:
		return p, err
	case null:
		p.LastMessage = entity.Set(entity.LastMessage{})
	case present:
		lm, err := decodeLastMessage(last)
		if err != nil {
			return p, err
		}
		p.LastMessage = entity.Set(lm)
	}
	return p, nil
}

func decodeLastMessage(f fieldSet) (entity.LastMessage, error) {
	sid, err := f.str("sid")
	if err != nil {
		return entity.LastMessage{}, err
	}
	author, err := f.str("author")
	if err != nil {
		return entity.LastMessage{}, err
	}
	typ, err := f.str("type")
	if err != nil {
		return entity.LastMessage{}, err
	}
	index, err := f.integer("index")
	if err != nil {
		return entity.LastMessage{}, err
	}
	date, err := f.timestamp("dateCreated")
	if err != nil {
		return entity.LastMessage{}, err
	}
	return entity.LastMessage{
		Sid:    sid.Or(""),
		Author: author.Or(""),
		Type:   typ.Or(""),
		Index:  index.Or(0),
		Date:   date.Or(time.Time{}),
	}, nil
}

// mediaFields is the attachment descriptor carried by a message event.
type mediaFields struct {
	Sid         string
	Filename    string
	ContentType string
	Size        int64
	Category    entity.MediaCategory
}

func decodeMessage(sid string, f fieldSet) (entity.MessagePatch, *mediaFields, error) {
	p := entity.MessagePatch{}
	if sid != "" {
		p.Sid = entity.Set(sid)
	}
	uuid, err := f.str("uuid")
	if err != nil {
		return p, nil, err
	}
	p.UUID = uuid.Or("")
	if p.Author, err = f.str("author"); err != nil {
		return p, nil, err
	}
	if p.Body, err = f.str("body"); err != nil {
		return p, nil, err
	}
	if p.Index, err = f.integer("index"); err != nil {
		return p, nil, err
	}
	if p.DateCreated, err = f.timestamp("dateCreated"); err != nil {
		return p, nil, err
	}
	if p.DateUpdated, err = f.timestamp("dateUpdated"); err != nil {
		return p, nil, err
	}
	if p.Attributes, err = f.attributes("attributes"); err != nil {
		return p, nil, err
	}

	mf, present, null, err := f.object("media")
	if err != nil || !present || null {
		return p, nil, err
	}
	media := &mediaFields{}
	fields := []struct {
		name string
		dst  *string
	}{
		{"sid", &media.Sid},
		{"filename", &media.Filename},
		{"contentType", &media.ContentType},
	}
	for _, fd := range fields {
		v, err := mf.str(fd.name)
		if err != nil {
			return p, nil, err
		}
		*fd.dst = v.Or("")
	}
	size, err := mf.integer("size")
	if err != nil {
		return p, nil, err
	}
	media.Size = size.Or(0)
	category, err := mf.str("category")
	if err != nil {
		return p, nil, err
	}
	media.Category = entity.MediaCategory(category.Or(""))

	p.MediaSid = entity.Set(media.Sid)
	p.MediaFilename = entity.Set(media.Filename)
	p.MediaContentType = entity.Set(media.ContentType)
	p.MediaSize = entity.Set(media.Size)
	return p, media, nil
}

func decodeParticipant(sid string, f fieldSet) (entity.ParticipantPatch, error) {
	p := entity.ParticipantPatch{Sid: sid}
	var err error
	if p.Identity, err = f.str("identity"); err != nil {
		return p, err
	}
	channel, err := f.str("channel")
	if err != nil {
		return p, err
	}
	if v, ok := channel.Get(); ok {
		if v == "" {
			v = string(entity.ChannelChat)
		}
		p.Channel = entity.Set(entity.Channel(v))
	}
	if p.Attributes, err = f.attributes("attributes"); err != nil {
		return p, err
	}
	if p.LastReadMessageIndex, err = f.integer("lastReadMessageIndex"); err != nil {
		return p, err
	}
	if p.IsTyping, err = f.boolean("isTyping"); err != nil {
		return p, err
	}
	return p, nil
}
