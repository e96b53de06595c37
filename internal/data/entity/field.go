// Package entity defines the cached entity kinds and the patch values used to
// merge partial updates into them.
//
// A patch carries one Field per mutable attribute. A zero Field means
// "unchanged"; Set marks the field as present, even when the value is empty.
package entity

// Kind names an entity table.
type Kind string

const (
	KindConversation Kind = "conversation"
	KindMessage      Kind = "message"
	KindParticipant  Kind = "participant"
	KindMedia        Kind = "media"
)

// Kinds lists every kind in cascade order.
func Kinds() []Kind {
	return []Kind{KindConversation, KindMessage, KindParticipant, KindMedia}
}

// Field is a patch slot that is either unchanged or set to a value.
type Field[T any] struct {
	value T
	set   bool
}

// Set returns a field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Get returns the value and whether it is set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// IsSet reports whether the patch carries this field.
func (f Field[T]) IsSet() bool {
	return f.set
}

// ApplyTo writes the value into dst when set.
func (f Field[T]) ApplyTo(dst *T) {
	if f.set {
		*dst = f.value
	}
}

// Or returns the value when set and fallback otherwise.
func (f Field[T]) Or(fallback T) T {
	if f.set {
		return f.value
	}
	return fallback
}
