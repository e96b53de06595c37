// Package reaction implements the per-message reaction set: a mapping from
// reaction type to the set of participant identities that reacted with it.
//
// A Set is an immutable value. Toggle returns a new Set, so a Set read from a
// stored message can be shared freely between goroutines.
package reaction

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Type is a reaction token as it appears on the wire.
type Type string

const (
	Heart      Type = "heart"
	Laugh      Type = "laugh"
	Sad        Type = "sad"
	Pouting    Type = "pouting"
	ThumbsUp   Type = "thumbsUp"
	ThumbsDown Type = "thumbsDown"
)

// attributesKey is the attributes blob key holding the serialized set.
const attributesKey = "reactions"

var known = []Type{Heart, Laugh, Sad, Pouting, ThumbsUp, ThumbsDown}

// Types returns the fixed reaction enumeration.
func Types() []Type {
	out := make([]Type, len(known))
	copy(out, known)
	return out
}

// Parse validates a reaction token.
func Parse(token string) (Type, error) {
	for _, t := range known {
		if string(t) == token {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown reaction type %q", token)
}

// Set maps reaction types to participant identities. A type is never present
// with an empty participant set.
type Set struct {
	byType map[Type]map[string]struct{}
}

// Toggle adds participant to t if absent and removes it if present. Removing
// the last participant of a type removes the type. An empty participant
// leaves the set unchanged.
func (s Set) Toggle(t Type, participant string) Set {
	if participant == "" {
		return s
	}
	out := s.clone()
	members, ok := out.byType[t]
	if ok {
		if _, present := members[participant]; present {
			delete(members, participant)
			if len(members) == 0 {
				delete(out.byType, t)
			}
			return out.normalized()
		}
	} else {
		members = make(map[string]struct{})
		if out.byType == nil {
			out.byType = make(map[Type]map[string]struct{})
		}
		out.byType[t] = members
	}
	members[participant] = struct{}{}
	return out
}

// Has reports whether participant reacted with t.
func (s Set) Has(t Type, participant string) bool {
	_, ok := s.byType[t][participant]
	return ok
}

// Count returns how many participants reacted with t.
func (s Set) Count(t Type) int {
	return len(s.byType[t])
}

// Participants returns the sorted participants for t.
func (s Set) Participants(t Type) []string {
	members := s.byType[t]
	if len(members) == 0 {
		return nil
	}
	out := make([]string, 0, len(members))
	for p := range members {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Types returns the reaction types present in the set, sorted.
func (s Set) Types() []Type {
	out := make([]Type, 0, len(s.byType))
	for t := range s.byType {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsEmpty reports whether no reactions are recorded.
func (s Set) IsEmpty() bool {
	return len(s.byType) == 0
}

// Equal reports structural equality.
func (s Set) Equal(o Set) bool {
	if len(s.byType) != len(o.byType) {
		return false
	}
	for t, members := range s.byType {
		other, ok := o.byType[t]
		if !ok || len(other) != len(members) {
			return false
		}
		for p := range members {
			if _, ok := other[p]; !ok {
				return false
			}
		}
	}
	return true
}

// MarshalJSON encodes the set as {"<type>": ["<participant>", ...]} with
// sorted keys and sorted participants.
func (s Set) MarshalJSON() ([]byte, error) {
	out := make(map[string][]string, len(s.byType))
	for t := range s.byType {
		out[string(t)] = s.Participants(t)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the object form. Empty participant lists are
// dropped and duplicate participants collapse.
func (s *Set) UnmarshalJSON(data []byte) error {
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode reactions: %w", err)
	}
	s.byType = nil
	for token, participants := range raw {
		for _, p := range participants {
			s.add(Type(token), p)
		}
	}
	return nil
}

// FromAttributes reads the set stored under "reactions" in an attributes
// blob. A missing key or an empty blob yields an empty set.
func FromAttributes(attrs string) (Set, error) {
	if attrs == "" {
		return Set{}, nil
	}
	if !gjson.Valid(attrs) {
		return Set{}, fmt.Errorf("attributes are not valid JSON")
	}
	node := gjson.Get(attrs, attributesKey)
	if !node.Exists() || node.Type == gjson.Null {
		return Set{}, nil
	}
	if !node.IsObject() {
		return Set{}, fmt.Errorf("attributes %q is not an object", attributesKey)
	}
	var s Set
	node.ForEach(func(key, value gjson.Result) bool {
		for _, p := range value.Array() {
			if p.Type == gjson.String {
				s.add(Type(key.String()), p.String())
			}
		}
		return true
	})
	return s, nil
}

// IntoAttributes writes s under "reactions" in attrs, preserving every other
// key. An empty set removes the key.
func IntoAttributes(attrs string, s Set) (string, error) {
	if attrs == "" {
		attrs = "{}"
	}
	if !gjson.Valid(attrs) {
		return "", fmt.Errorf("attributes are not valid JSON")
	}
	if s.IsEmpty() {
		return sjson.Delete(attrs, attributesKey)
	}
	raw, err := s.MarshalJSON()
	if err != nil {
		return "", err
	}
	return sjson.SetRaw(attrs, attributesKey, string(raw))
}

func (s *Set) add(t Type, participant string) {
	if participant == "" {
		return
	}
	if s.byType == nil {
		s.byType = make(map[Type]map[string]struct{})
	}
	members, ok := s.byType[t]
	if !ok {
		members = make(map[string]struct{})
		s.byType[t] = members
	}
	members[participant] = struct{}{}
}

func (s Set) clone() Set {
	if len(s.byType) == 0 {
		return Set{}
	}
	out := Set{byType: make(map[Type]map[string]struct{}, len(s.byType))}
	for t, members := range s.byType {
		cp := make(map[string]struct{}, len(members))
		for p := range members {
			cp[p] = struct{}{}
		}
		out.byType[t] = cp
	}
	return out
}

func (s Set) normalized() Set {
	if len(s.byType) == 0 {
		return Set{}
	}
	return s
}
