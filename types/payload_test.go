package types

import (
	"encoding/json"
	"testing"

	"github.com/RezaEskandarii/tickqueue/custom_errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_ProjectDevelopment(t *testing.T) {
	raw := json.RawMessage(`{"projectId":"p-1","clientId":"c-1","title":"ERP rollout","requirements":["sso"]}`)

	p, err := DecodePayload(JobTypeProjectDevelopment, raw)
	require.NoError(t, err)

	dev, ok := p.(ProjectDevelopmentPayload)
	require.True(t, ok)
	assert.Equal(t, "p-1", dev.ProjectID)
	assert.Equal(t, []string{"sso"}, dev.Requirements)
}

func TestDecodePayload_UnknownType(t *testing.T) {
	_, err := DecodePayload("send-fax", json.RawMessage(`{}`))
	assert.ErrorIs(t, err, custom_errors.ErrUnknownJobType)
}

func TestDecodePayload_ValidationFailure(t *testing.T) {
	_, err := DecodePayload(JobTypeProjectDevelopment, json.RawMessage(`{"projectId":"p-1"}`))
	assert.ErrorIs(t, err, custom_errors.ErrInvalidPayload)
	assert.Contains(t, err.Error(), "clientId is required")
}

func TestDecodePayload_Malformed(t *testing.T) {
	_, err := DecodePayload(JobTypeInvoiceRender, json.RawMessage(`{"invoiceId":`))
	assert.ErrorIs(t, err, custom_errors.ErrInvalidPayload)

	_, err = DecodePayload(JobTypeInvoiceRender, nil)
	assert.ErrorIs(t, err, custom_errors.ErrInvalidPayload)
}

func TestJobView_ErrorMessage(t *testing.T) {
	j := &Job{ID: "j-1", Attempts: 2, MaxAttempts: 3}
	assert.Nil(t, j.View().ErrorMessage)

	j.ErrorMessage.String, j.ErrorMessage.Valid = "boom", true
	v := j.View()
	require.NotNil(t, v.ErrorMessage)
	assert.Equal(t, "boom", *v.ErrorMessage)
	assert.Equal(t, 3, v.MaxAttempts)
}
