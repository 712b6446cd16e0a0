package output

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHookOutput_NoopMarshalsEmpty(t *testing.T) {
	data, err := json.Marshal(HookOutput{})
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(data))
}

func TestHookOutput_Block(t *testing.T) {
	data, err := json.Marshal(HookOutput{Decision: "block", Reason: "File claimed by agent:A:editor"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"decision":"block","reason":"File claimed by agent:A:editor"}`, string(data))
}

func TestHookOutput_Context(t *testing.T) {
	data, err := json.Marshal(HookOutput{AdditionalContext: "[Lessons from past sessions]"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"additionalContext":"[Lessons from past sessions]"}`, string(data))
}

func TestResponseEnvelope(t *testing.T) {
	resp := Success(map[string]int{"n": 1})
	assert.Equal(t, "v1", resp.SchemaVersion)
	assert.True(t, resp.Success)

	errResp := Error(assert.AnError)
	assert.False(t, errResp.Success)
	assert.NotEmpty(t, errResp.Error)
}
