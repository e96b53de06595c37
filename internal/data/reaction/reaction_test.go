package reaction

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToggleTwiceRemovesKey(t *testing.T) {
	var s Set
	s = s.Toggle(Heart, "alice")
	require.True(t, s.Has(Heart, "alice"))
	require.Equal(t, []Type{Heart}, s.Types())

	s = s.Toggle(Heart, "alice")
	assert.True(t, s.IsEmpty())
	assert.Empty(t, s.Types())
	assert.Equal(t, 0, s.Count(Heart))
}

func TestToggleIsInvolution(t *testing.T) {
	base := Set{}.Toggle(Heart, "bob").Toggle(Laugh, "alice").Toggle(Heart, "carol")

	cases := []struct {
		name        string
		typ         Type
		participant string
	}{
		{"existing member", Heart, "bob"},
		{"new member on existing type", Laugh, "bob"},
		{"new type", Sad, "dave"},
		{"sole member", Laugh, "alice"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := base.Toggle(tc.typ, tc.participant).Toggle(tc.typ, tc.participant)
			assert.True(t, got.Equal(base), "toggle twice must restore the set")
		})
	}
}

func TestToggleDoesNotMutateReceiver(t *testing.T) {
	base := Set{}.Toggle(ThumbsUp, "alice")
	_ = base.Toggle(ThumbsUp, "alice")
	_ = base.Toggle(ThumbsUp, "bob")

	assert.Equal(t, []string{"alice"}, base.Participants(ThumbsUp))
}

func TestJSONRoundTrip(t *testing.T) {
	s := Set{}.
		Toggle(Heart, "bob").
		Toggle(Heart, "alice").
		Toggle(Sad, "carol").
		Toggle(Sad, "carol")

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"heart":["alice","bob"]}`, string(raw))

	var back Set
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equal(s))
	assert.NotContains(t, back.Types(), Sad)
}

func TestUnmarshalDropsEmptyLists(t *testing.T) {
	var s Set
	require.NoError(t, json.Unmarshal([]byte(`{"heart":[],"laugh":["a","a"]}`), &s))

	assert.Equal(t, []Type{Laugh}, s.Types())
	assert.Equal(t, []string{"a"}, s.Participants(Laugh))
}

func TestAttributesRoundTripPreservesOtherKeys(t *testing.T) {
	attrs := `{"importance":"high","reactions":{"laugh":["zed"]}}`

	s, err := FromAttributes(attrs)
	require.NoError(t, err)
	require.True(t, s.Has(Laugh, "zed"))

	s = s.Toggle(Heart, "alice")
	out, err := IntoAttributes(attrs, s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"importance":"high","reactions":{"heart":["alice"],"laugh":["zed"]}}`, out)

	back, err := FromAttributes(out)
	require.NoError(t, err)
	assert.True(t, back.Equal(s))
}

func TestIntoAttributesEmptySetRemovesKey(t *testing.T) {
	out, err := IntoAttributes(`{"reactions":{"heart":["alice"]},"x":1}`, Set{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":1}`, out)

	out, err = IntoAttributes("", Set{}.Toggle(Heart, "alice"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"reactions":{"heart":["alice"]}}`, out)
}

func TestFromAttributes(t *testing.T) {
	cases := []struct {
		name    string
		attrs   string
		wantErr bool
		empty   bool
	}{
		{name: "empty blob", attrs: "", empty: true},
		{name: "no reactions key", attrs: `{"a":1}`, empty: true},
		{name: "null reactions", attrs: `{"reactions":null}`, empty: true},
		{name: "not json", attrs: `{oops`, wantErr: true},
		{name: "reactions not object", attrs: `{"reactions":[1]}`, wantErr: true},
		{name: "populated", attrs: `{"reactions":{"sad":["x"]}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := FromAttributes(tc.attrs)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.empty, s.IsEmpty())
		})
	}
}

func TestParse(t *testing.T) {
	typ, err := Parse("thumbsUp")
	require.NoError(t, err)
	assert.Equal(t, ThumbsUp, typ)

	_, err = Parse("shrug")
	assert.Error(t, err)
	assert.Len(t, Types(), 6)
}

func TestToggleIgnoresEmptyParticipant(t *testing.T) {
	s := Set{}.Toggle(Heart, "alice")
	got := s.Toggle(Laugh, "").Toggle(Heart, "")
	assert.True(t, got.Equal(s))
	assert.Equal(t, []Type{Heart}, got.Types())

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var back Set
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Equal(got))
}
