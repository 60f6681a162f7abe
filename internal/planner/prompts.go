package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/llm"
	"github.com/mtzanidakis/agentcrew/internal/message"
)

const planSystemPrompt = `You are an expert planner. Break the user's goal down into small tasks that a team can carry out one at a time.

Respond with a JSON object of the form {"tasks": [...]}. Each task has:
- "task_id": integer, unique, starting at 1
- "action": one of "search", "api_call", "write_code", "evaluate_code", "finish"
- "description": what the task must achieve
- "file_path": path of the file the task works on (write_code, evaluate_code)
- "query": the web search query (search)
- "requests": for api_call, a list of {"url", "method" (default GET), "params", "data"}
- "status": "pending"

Rules:
- Follow every write_code task with an evaluate_code task for the same file.
- When a file needs data from an API, put one api_call task directly before its write_code task.
- When the goal is ambiguous, start with a search task.
- The last task must be a finish task.

Example for "Create a page listing the latest cs.AI papers":
{"tasks": [
  {"task_id": 1, "action": "api_call", "description": "Fetch recent cs.AI papers.", "requests": [{"url": "https://export.arxiv.org/api/query?search_query=cat:cs.AI&sortBy=lastUpdatedDate&sortOrder=descending&max_results=5"}], "status": "pending"},
  {"task_id": 2, "action": "write_code", "description": "Create data.js exporting the papers as an array of objects with id, title, authors, abstract.", "file_path": "output/papers/data.js", "status": "pending"},
  {"task_id": 3, "action": "evaluate_code", "description": "Check data.js is valid JavaScript with the expected fields.", "file_path": "output/papers/data.js", "status": "pending"},
  {"task_id": 4, "action": "write_code", "description": "Create index.html rendering the papers from data.js.", "file_path": "output/papers/index.html", "status": "pending"},
  {"task_id": 5, "action": "evaluate_code", "description": "Check index.html is complete HTML that loads data.js.", "file_path": "output/papers/index.html", "status": "pending"},
  {"task_id": 6, "action": "finish", "description": "Summarize the project and its evaluations.", "status": "pending"}
]}`

const summarySystemPrompt = "You are a project manager. Based on the evaluation history below, write a concise summary of how the project was developed and what the final outcome is."

func planRequest(goal string, searchHistory []string) llm.Request {
	var user strings.Builder
	fmt.Fprintf(&user, "Please generate a plan for the following goal:\n\nGoal: %s", goal)
	if len(searchHistory) > 0 {
		hist, _ := json.MarshalIndent(searchHistory, "", "  ")
		fmt.Fprintf(&user, "\n\nSearch history for reference:\n%s", hist)
	}
	return llm.Request{
		Messages:    []llm.Message{llm.System(planSystemPrompt), llm.User(user.String())},
		Temperature: 0.2,
		JSONMode:    true,
	}
}

func summaryRequest(evals []Evaluation) llm.Request {
	if evals == nil {
		evals = []Evaluation{}
	}
	hist, _ := json.MarshalIndent(evals, "", "  ")
	return llm.Request{
		Messages: []llm.Message{
			llm.System(summarySystemPrompt),
			llm.User("Evaluation history:\n" + string(hist)),
		},
		Temperature: 0.5,
	}
}

// digest renders the evaluation record without the completion service.
func digest(goal string, evals []Evaluation) string {
	counts := map[message.Status]int{}
	for _, e := range evals {
		counts[e.Status]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n", truncate(goal, 200))
	fmt.Fprintf(&b, "%d evaluations: %d approved, %d revisions requested, %d errors",
		len(evals), counts[message.StatusApproved], counts[message.StatusRequiresRevision], counts[message.StatusError])
	for _, e := range evals {
		fmt.Fprintf(&b, "\n- task %d %s: %s", e.TaskID, e.FilePath, e.Status)
		if e.Feedback != "" {
			fmt.Fprintf(&b, " (%s)", truncate(e.Feedback, 160))
		}
	}
	return b.String()
}
