package registry

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/RezaEskandarii/tickqueue/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_IsIdempotent(t *testing.T) {
	r := New()
	first := func(context.Context, json.RawMessage) (any, error) { return "first", nil }
	second := func(context.Context, json.RawMessage) (any, error) { return "second", nil }

	require.NoError(t, r.Register("demo", first))
	require.NoError(t, r.Register("demo", second))

	h, ok := r.Get("demo")
	require.True(t, ok)
	res, err := h(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "first", res)
	assert.Equal(t, []string{"demo"}, r.Types())
}

func TestRegister_RejectsEmpty(t *testing.T) {
	r := New()
	assert.Error(t, r.Register("", func(context.Context, json.RawMessage) (any, error) { return nil, nil }))
	assert.Error(t, r.Register("demo", nil))
	assert.False(t, r.Exists("demo"))
}

func TestGet_Unknown(t *testing.T) {
	_, ok := New().Get("missing")
	assert.False(t, ok)
}

func TestRegisterTyped(t *testing.T) {
	r := New()
	var got types.InvoiceRenderPayload
	err := RegisterTyped(r, types.JobTypeInvoiceRender, func(_ context.Context, p types.InvoiceRenderPayload) (any, error) {
		got = p
		return p.InvoiceID, nil
	})
	require.NoError(t, err)

	h, ok := r.Get(types.JobTypeInvoiceRender)
	require.True(t, ok)

	res, err := h(context.Background(), json.RawMessage(`{"invoiceId":"inv-1","clientId":"c-1"}`))
	require.NoError(t, err)
	assert.Equal(t, "inv-1", res)
	assert.Equal(t, "c-1", got.ClientID)
}

func TestRegisterTyped_BadPayloadIsPermanent(t *testing.T) {
	r := New()
	require.NoError(t, RegisterTyped(r, types.JobTypeInvoiceRender, func(context.Context, types.InvoiceRenderPayload) (any, error) {
		return nil, errors.New("should not run")
	}))
	h, _ := r.Get(types.JobTypeInvoiceRender)

	_, err := h(context.Background(), json.RawMessage(`{"clientId":"c-1"}`))
	require.Error(t, err)
	assert.False(t, custom_errors.IsRetryable(err))

	_, err = h(context.Background(), json.RawMessage(`not json`))
	require.Error(t, err)
	assert.False(t, custom_errors.IsRetryable(err))
}
