package structured_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/paperscore/internal/infra/ai/prompt"
	"github.com/bryanwahyu/paperscore/internal/infra/ai/structured"
)

var agentSchema = structured.MustCompile("agent.json", prompt.AgentSchema)

func TestExtractJSON(t *testing.T) {
	got, err := structured.ExtractJSON("```json\n{\"a\": 1}\n```")
	require.NoError(t, err)
	assert.Equal(t, `{"a": 1}`, got)

	got, err = structured.ExtractJSON(`Sure! Here is the result: {"a": {"b": 2}} Hope it helps.`)
	require.NoError(t, err)
	assert.Equal(t, `{"a": {"b": 2}}`, got)

	_, err = structured.ExtractJSON("no json here")
	assert.ErrorIs(t, err, structured.ErrNoJSON)
}

func TestDecodeValidAgentResponse(t *testing.T) {
	raw := `{"score": 82.4, "issues": [{"severity": "major", "description": "Sample too small"}],
	         "strengths": ["Clear aims"], "feedback": "Solid."}`
	v, err := structured.Decode[prompt.AgentResponse](raw, agentSchema)
	require.NoError(t, err)
	assert.InDelta(t, 82.4, v.Score, 0.001)
	require.Len(t, v.Issues, 1)
	assert.Equal(t, "major", v.Issues[0].Severity)
}

func TestDecodeRejectsSchemaViolation(t *testing.T) {
	_, err := structured.Decode[prompt.AgentResponse](`{"score": 140, "issues": [], "strengths": [], "feedback": ""}`, agentSchema)
	require.Error(t, err)

	_, err = structured.Decode[prompt.AgentResponse](`{"score": 70}`, agentSchema)
	require.Error(t, err)
}

func TestAllSchemasCompile(t *testing.T) {
	for name, src := range map[string]string{
		"structure.json":  prompt.StructureSchema,
		"references.json": prompt.ReferencesSchema,
		"cross.json":      prompt.CrossValidationSchema,
	} {
		_, err := structured.Compile(name, src)
		assert.NoError(t, err, name)
	}
}
