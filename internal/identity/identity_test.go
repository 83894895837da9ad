package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseShapesCollapse(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want ID
	}{
		{"string", `"65f1c0ffee"`, "65f1c0ffee"},
		{"padded string", `"  65f1c0ffee "`, "65f1c0ffee"},
		{"object id", `{"$oid":"65f1c0ffee"}`, "65f1c0ffee"},
		{"underscore id", `{"_id":"65f1c0ffee"}`, "65f1c0ffee"},
		{"nested id", `{"id":{"$oid":"65f1c0ffee"}}`, "65f1c0ffee"},
		{"number", `42`, "42"},
		{"exponent", `1e3`, "1000"},
		{"integral float", `1000.0`, "1000"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Parse(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestParseRejects(t *testing.T) {
	_, err := Parse(json.RawMessage(`""`))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse(json.RawMessage(`null`))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = Parse(json.RawMessage(`true`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse(json.RawMessage(`{"name":"bob"}`))
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Parse(json.RawMessage(`1.5`))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUnmarshalIntoStruct(t *testing.T) {
	var payload struct {
		SenderID   ID `json:"senderId"`
		ReceiverID ID `json:"receiverId"`
	}
	err := json.Unmarshal([]byte(`{"senderId":{"$oid":"a1"},"receiverId":" b2 "}`), &payload)
	require.NoError(t, err)
	assert.Equal(t, ID("a1"), payload.SenderID)
	assert.Equal(t, ID("b2"), payload.ReceiverID)

	err = json.Unmarshal([]byte(`{"senderId":false}`), &payload)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestUnmarshalEmptyLeavesZero(t *testing.T) {
	var payload struct {
		TopicID   ID `json:"topicId"`
		ProductID ID `json:"productId"`
	}
	err := json.Unmarshal([]byte(`{"topicId":"","productId":null}`), &payload)
	require.NoError(t, err)
	assert.True(t, payload.TopicID.IsZero())
	assert.True(t, payload.ProductID.IsZero())
}
