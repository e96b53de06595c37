package remote

import (
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

// NewFields builds an event field set from plain Go values. Nil values
// become explicit nulls.
func NewFields(values map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(values)
	if err != nil {
		return nil, fmt.Errorf("failed to build event fields: %w", err)
	}
	return s, nil
}

// MustFields is NewFields for literals in tests and fixtures.
func MustFields(values map[string]any) *structpb.Struct {
	s, err := NewFields(values)
	if err != nil {
		panic(err)
	}
	return s
}
