package coder

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/llm"
)

const outputRule = "Your output MUST be ONLY the complete, updated code for the file. Do NOT include any explanations, markdown, or any text other than the code itself."

func generateRequest(description, current string, apiData []string, searchResults string) llm.Request {
	var sys strings.Builder
	sys.WriteString("You are an expert programmer. Write clean, efficient and correct code based on a given description.\n")
	sys.WriteString("You will be given the task description, the current content of the file and, when available, search results for context.\n")
	if len(apiData) > 0 {
		data, _ := json.MarshalIndent(apiData, "", "  ")
		fmt.Fprintf(&sys, "\nAPI data returned by a recent call. Use it in the code you generate; when it is a list you may need to process or merge the items.\n```json\n%s\n```\n", data)
	}
	sys.WriteString("\n" + outputRule + "\n")
	if searchResults != "" {
		fmt.Fprintf(&sys, "\nSearch results:\n%s\n", searchResults)
	}

	user := fmt.Sprintf("Task description:\n%s\n\nCurrent code:\n```\n%s\n```\n\nPlease provide the complete, updated code for the file.", description, current)
	return llm.Request{
		Messages:    []llm.Message{llm.System(sys.String()), llm.User(user)},
		Temperature: 0.1,
	}
}

func reviseRequest(feedback, current, searchResults string) llm.Request {
	var sys strings.Builder
	sys.WriteString("You are an expert programmer. Revise a piece of code based on specific feedback.\n")
	sys.WriteString("\n" + outputRule + "\n")
	if searchResults != "" {
		fmt.Fprintf(&sys, "\nSearch results:\n%s\n", searchResults)
	}

	user := fmt.Sprintf("Revision feedback:\n%s\n\nCurrent code:\n```\n%s\n```\n\nPlease provide the complete, revised code for the file.", feedback, current)
	return llm.Request{
		Messages:    []llm.Message{llm.System(sys.String()), llm.User(user)},
		Temperature: 0.1,
	}
}
