package service

import (
	"testing"

	"schemabench/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderConversationDeterministic(t *testing.T) {
	first := RenderConversation()
	assert.Equal(t, first, RenderConversation())
	assert.Contains(t, first, "ACCT-4821")
	assert.Contains(t, first, "BIL-209")
}

func TestOneShotPromptVariants(t *testing.T) {
	loose := OneShotPrompt(false)
	assert.Contains(t, loose, `"additionalProperties"`, "non-strict prompt inlines the schema")

	strict := OneShotPrompt(true)
	assert.NotContains(t, strict, `"additionalProperties"`, "strict mode relies on the provider constraint")
}

func TestStepPromptInterpolatesPriorOutputs(t *testing.T) {
	prior := []map[string]interface{}{{"name": "Dana Whitfield"}}
	prompt := StepPrompt(2, false, prior)

	assert.Contains(t, prompt, "Step 2 of 3")
	assert.Contains(t, prompt, "Dana Whitfield")
	assert.Contains(t, prompt, "Already extracted in step 1")
}

func TestRetryPromptListsErrors(t *testing.T) {
	errs := []model.ValidationError{
		{Path: "customer.plan", Message: "must be one of basic, pro, enterprise", Code: "enum"},
		{Path: "issue", Message: "summary is required", Code: "required"},
	}
	prompt := RetryPrompt(errs)

	require.Contains(t, prompt, "customer.plan")
	assert.Contains(t, prompt, "must be one of basic, pro, enterprise")
	assert.Contains(t, prompt, "summary is required")
}
