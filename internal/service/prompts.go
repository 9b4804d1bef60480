package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"schemabench/internal/model"
)

// Fixed support transcript every scenario extracts from. Deterministic per
// process so that runs are comparable across models and scenarios.
var conversationLines = []string{
	"Customer: Hi, I think I've been charged twice this month.",
	"Agent: Sorry to hear that! Can I get your name and the email on the account?",
	"Customer: Dana Whitfield, dana.whitfield@example.com. Account ID is ACCT-4821.",
	"Agent: Thanks Dana. I see you're on the Pro plan. When did the charges appear?",
	"Customer: Both on the 3rd, right after I upgraded. The app also showed error BIL-209 when I opened the invoice page.",
	"Agent: That's a duplicate charge from the upgrade flow, a known billing bug. It's annoying but not service-affecting, so I'd call it medium severity.",
	"Customer: As long as I get the money back I'm fine.",
	"Agent: I've refunded the duplicate charge just now. It can take 3-5 business days to land, so we'll keep the ticket open and follow up once it clears.",
	"Customer: Great, thanks. Pretty happy with how quick that was, maybe a 4 out of 5 since it happened at all.",
}

// RenderConversation returns the transcript as a single prompt block.
func RenderConversation() string {
	return "Support conversation transcript:\n\n" + strings.Join(conversationLines, "\n")
}

const systemPrompt = "You are a data extraction assistant. You read customer support transcripts " +
	"and produce structured JSON records. Be precise: only state facts present in the transcript."

var stepTitles = [3]string{
	"the customer profile (name, email, account_id, plan)",
	"the issue (category, severity, summary, error_code)",
	"the resolution (status, action_taken, follow_up_required, satisfaction_estimate)",
}

// OneShotPrompt asks for the complete ticket in a single response. The
// non-strict variant carries the schema inline because nothing else
// constrains the output; the strict variant leans on the provider-enforced
// schema and only names the task.
func OneShotPrompt(strict bool) string {
	if strict {
		return "Extract the complete support ticket record from the transcript above."
	}
	return fmt.Sprintf(
		"Extract the complete support ticket record from the transcript above.\n\n"+
			"Respond with a single JSON object and nothing else. It must conform to this JSON schema:\n\n%s",
		fullSchemaJSON)
}

// StepPrompt builds the prompt for one pipeline step. Outputs of earlier
// steps are serialized into the prompt so each step builds on validated data.
func StepPrompt(step int, strict bool, prior []map[string]interface{}) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Step %d of 3: extract %s from the transcript above.\n", step, stepTitles[step-1])

	for i, out := range prior {
		data, _ := json.Marshal(out)
		fmt.Fprintf(&b, "\nAlready extracted in step %d:\n%s\n", i+1, data)
	}

	if strict {
		b.WriteString("\nRespond with the JSON object for this step only.")
	} else {
		fmt.Fprintf(&b,
			"\nRespond with a single JSON object and nothing else. It must conform to this JSON schema:\n\n%s",
			schemaFor(step).raw)
	}
	return b.String()
}

// RetryPrompt summarizes why the previous response was rejected and asks for
// a corrected one. The raw response itself is appended to the conversation as
// an assistant message by the runner, not repeated here.
func RetryPrompt(errs []model.ValidationError) string {
	var b strings.Builder
	b.WriteString("Your previous response was not valid. Problems found:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %s: %s\n", e.Path, e.Message)
	}
	b.WriteString("\nRespond again with a corrected JSON object and nothing else.")
	return b.String()
}
