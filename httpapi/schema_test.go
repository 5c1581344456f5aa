package httpapi

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xeipuuv/gojsonschema"
)

func TestUploadInitSchemaRejectsMissingRequiredFields(t *testing.T) {
	schema := inputSchemasCompiled["UploadInit"]
	result, err := schema.Validate(gojsonschema.NewStringLoader(`{"size": 10}`))
	require.NoError(t, err)
	require.False(t, result.Valid())
}

func TestUploadInitSchemaAcceptsMinimalValidBody(t *testing.T) {
	schema := inputSchemasCompiled["UploadInit"]
	result, err := schema.Validate(gojsonschema.NewStringLoader(`{"filename": "clip.mp4", "size": 100}`))
	require.NoError(t, err)
	require.True(t, result.Valid())
}

func TestSubmitJobSchemaRejectsInvalidAspectRatio(t *testing.T) {
	schema := inputSchemasCompiled["SubmitJob"]
	result, err := schema.Validate(gojsonschema.NewStringLoader(`{"blob_id": "abc", "options": {"aspect_ratio": "4:3"}}`))
	require.NoError(t, err)
	require.False(t, result.Valid())
}

func TestSubmitJobSchemaAcceptsMinimalValidBody(t *testing.T) {
	schema := inputSchemasCompiled["SubmitJob"]
	result, err := schema.Validate(gojsonschema.NewStringLoader(`{"blob_id": "abc"}`))
	require.NoError(t, err)
	require.True(t, result.Valid())
}
