package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRequest struct {
	Value string `json:"value" validate:"required"`
}

type fakeResponse struct {
	Status string `json:"status"`
}

func TestRegisterAndLookupIncoming(t *testing.T) {
	r := NewRegistry()
	d := &Descriptor{
		Action:     "FakeAction",
		Direction:  Incoming,
		NewRequest: func() interface{} { return &fakeRequest{} },
	}
	r.Register(d)

	got, ok := r.lookup("FakeAction", Incoming)
	require.True(t, ok)
	assert.Equal(t, d, got)

	_, ok = r.lookup("FakeAction", Outgoing)
	assert.False(t, ok, "an Incoming registration must not be visible under Outgoing")
}

func TestLookupUnknownActionFails(t *testing.T) {
	r := NewRegistry()
	_, ok := r.lookup("NoSuchAction", Incoming)
	assert.False(t, ok)
}

func TestDecodeAndValidateRejectsMalformedJSON(t *testing.T) {
	_, err := decodeAndValidate([]byte(`not json`), func() interface{} { return &fakeRequest{} }, func(interface{}) error { return nil })
	assert.Error(t, err)
}

func TestDecodeAndValidateRunsValidator(t *testing.T) {
	validateCalled := false
	_, err := decodeAndValidate([]byte(`{"value":"x"}`), func() interface{} { return &fakeRequest{} }, func(v interface{}) error {
		validateCalled = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, validateCalled)
}

func TestDecodeAndValidatePropagatesValidationError(t *testing.T) {
	wantErr := assert.AnError
	_, err := decodeAndValidate([]byte(`{}`), func() interface{} { return &fakeRequest{} }, func(v interface{}) error {
		return wantErr
	})
	assert.Equal(t, wantErr, err)
}
