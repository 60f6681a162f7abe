package evaluator

import (
	"fmt"

	"github.com/mtzanidakis/agentcrew/internal/llm"
)

const systemPrompt = `You are an expert code evaluator. Assess a piece of code against the user's goal.
Respond with a JSON object with two keys:
1. "status": either "approved" or "requires_revision".
2. "feedback": a brief confirmation when approved; otherwise clear, specific and constructive feedback on what must change to meet the goal.

Evaluation criteria:
- Readability: is the code easy to follow?
- Adherence: does the code meet the specific requirements of the goal?

Example (approved):
Goal: "Create a Python function that adds two numbers."
Code: "def add(a, b): return a + b"
{"status": "approved", "feedback": "The function correctly adds two numbers."}

Example (requires revision):
Goal: "Create a Python function that adds two numbers."
Code: "def add(a, b): return a * b"
{"status": "requires_revision", "feedback": "The code multiplies instead of adding. Change '*' to '+'."}`

func evaluateRequest(goal, code string) llm.Request {
	user := fmt.Sprintf("Please evaluate the following code based on the user's goal.\n\nGoal: %s\n\nCode:\n```\n%s\n```", goal, code)
	return llm.Request{
		Messages:    []llm.Message{llm.System(systemPrompt), llm.User(user)},
		Temperature: 0.2,
		JSONMode:    true,
	}
}
