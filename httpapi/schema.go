package httpapi

import "github.com/xeipuuv/gojsonschema"

// Request body shapes are schema-validated before being unmarshaled into
// their typed Go structs: a two-step validate-then-decode.
const uploadInitSchemaDefinition = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["filename", "size"],
	"properties": {
		"filename": {"type": "string", "minLength": 1},
		"size": {"type": "integer", "minimum": 1},
		"content_type": {"type": "string"},
		"chunk_size": {"type": "integer", "minimum": 1}
	}
}`

const submitJobSchemaDefinition = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["blob_id"],
	"properties": {
		"blob_id": {"type": "string", "minLength": 1},
		"options": {
			"type": "object",
			"properties": {
				"add_captions": {"type": "boolean"},
				"caption_style": {"type": "string"},
				"aspect_ratio": {"type": "string", "enum": ["9:16", "1:1", "16:9"]},
				"target_platforms": {"type": "array", "items": {"type": "string"}},
				"clip_duration_hint": {"type": "number"},
				"quality_preset": {"type": "string", "enum": ["fast", "medium", "high"]}
			}
		}
	}
}`

var inputSchemas = map[string]string{
	"UploadInit": uploadInitSchemaDefinition,
	"SubmitJob":  submitJobSchemaDefinition,
}

func compileJSONSchemas() map[string]*gojsonschema.Schema {
	compiled := make(map[string]*gojsonschema.Schema, len(inputSchemas))
	for name, text := range inputSchemas {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(text))
		if err != nil {
			panic("httpapi: invalid embedded schema " + name + ": " + err.Error())
		}
		compiled[name] = schema
	}
	return compiled
}

var inputSchemasCompiled = compileJSONSchemas()
