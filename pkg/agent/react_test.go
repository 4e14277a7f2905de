package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseReact_PlainObject(t *testing.T) {
	reply, ok := parseReact(`{"thought":"need to search","action":"search","action_input":{"query":"weather"}}`)
	require.True(t, ok)
	assert.Equal(t, "need to search", reply.Thought)
	assert.Equal(t, "search", reply.Action)
	assert.Equal(t, map[string]interface{}{"query": "weather"}, actionInputMap(reply.ActionInput))
}

func TestParseReact_StripsThinkTagsAndCodeFence(t *testing.T) {
	content := "<think>let me reason about this</think>\n```json\n{\"thought\":\"ok\",\"action\":\"finish\",\"action_input\":\"done\"}\n```"
	reply, ok := parseReact(content)
	require.True(t, ok)
	assert.Equal(t, "finish", reply.Action)
	assert.Equal(t, "done", actionInputString(reply.ActionInput))
}

func TestParseReact_ProseWrappedJSON(t *testing.T) {
	content := `Sure, here's my plan: {"thought":"t","action":"think","action_input":"x"} and that's it.`
	reply, ok := parseReact(content)
	require.True(t, ok)
	assert.Equal(t, "think", reply.Action)
}

func TestParseReact_MissingAction_Fails(t *testing.T) {
	_, ok := parseReact(`{"thought":"no action here"}`)
	assert.False(t, ok)
}

func TestParseReact_NoJSON_Fails(t *testing.T) {
	_, ok := parseReact("just plain text, no object at all")
	assert.False(t, ok)
}

func TestParseReact_EmptyActionString_Fails(t *testing.T) {
	_, ok := parseReact(`{"thought":"x","action":""}`)
	assert.False(t, ok)
}

func TestActionInputMap_NonObjectWrapsUnderInput(t *testing.T) {
	reply, ok := parseReact(`{"action":"finish","action_input":"plain string"}`)
	require.True(t, ok)
	assert.Equal(t, map[string]interface{}{"input": "plain string"}, actionInputMap(reply.ActionInput))
}

func TestStripThinkingTags(t *testing.T) {
	out := stripThinkingTags("<think>internal reasoning</think>\nthe actual reply")
	assert.Equal(t, "the actual reply", out)
}

func TestFirstJSONObject_HandlesEscapedQuotesInStrings(t *testing.T) {
	block, ok := firstJSONObject(`{"action":"say","action_input":"she said \"hi\""}`)
	require.True(t, ok)
	assert.Contains(t, block, `\"hi\"`)
}
