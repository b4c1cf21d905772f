package validation

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func questionSchema() JSONSchema {
	return JSONSchema{
		Type: "object",
		Properties: map[string]Property{
			"question": {Type: "string", MinLength: Int(3)},
			"options":  {Type: "array", Items: &Property{Type: "string"}},
			"adults":   {Type: "integer", Minimum: Float(1)},
		},
		Required: []string{"question"},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantValid bool
		wantField string
	}{
		{"valid", `{"question":"Where to?","options":["Rome","Paris"]}`, true, ""},
		{"missing required", `{"options":[]}`, false, "(root)"},
		{"too short", `{"question":"Hi"}`, false, "question"},
		{"wrong item type", `{"question":"Where to?","options":[1]}`, false, "options.0"},
		{"below minimum", `{"question":"How many?","adults":0}`, false, "adults"},
		{"extra field rejected", `{"question":"Where to?","color":"red"}`, false, "(root)"},
		{"empty body treated as object", ``, false, "(root)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateJSON([]byte(tt.raw), questionSchema())
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, result.Valid, result.GetErrorMessages())
			if tt.wantField != "" {
				assert.True(t, result.HasErrors(tt.wantField), result.GetErrorMessages())
			}
		})
	}
}

func TestValidateJSON_MalformedDocument(t *testing.T) {
	_, err := ValidateJSON([]byte(`{"question":`), questionSchema())
	assert.Error(t, err)
}

func TestValidateInput(t *testing.T) {
	result, err := ValidateInput(map[string]interface{}{"question": "Which month?"}, questionSchema())
	require.NoError(t, err)
	assert.True(t, result.Valid)
}

func TestJSONSchema_MarshalsAdditionalPropertiesFalse(t *testing.T) {
	raw, err := json.Marshal(questionSchema())
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"additionalProperties":false`)
	assert.Contains(t, string(raw), `"minLength":3`)
}

func TestValidateEmailAndPhone(t *testing.T) {
	assert.True(t, ValidateEmail("ana@example.com"))
	assert.False(t, ValidateEmail("ana@"))
	assert.True(t, ValidatePhone("+14155550100"))
	assert.False(t, ValidatePhone("415-555-0100"))
}
