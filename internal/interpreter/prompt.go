package interpreter

import (
	"fmt"
	"strings"
	"time"
)

const systemPrompt = `You are a helpful assistant that parses natural language messages into structured task data for a client Kanban board.

When given a message, extract the following fields if present:
- title: The main task title (required)
- client: The client name if mentioned
- priority: "high", "medium", or "low" (default to "medium" if not specified)
- dueDate: ISO date if a date is mentioned (YYYY-MM-DD), or a full RFC 3339 timestamp if a time of day is mentioned
- remindMeInMinutes: how many minutes before the due date to send a reminder, only if a reminder is requested
- checklist: Array of checklist items if subtasks are mentioned

Return ONLY valid JSON with these fields. Do not include any explanatory text.

Examples:
Input: "Create a proposal for Acme Corp, high priority, due Friday"
Output: {"title": "Create proposal", "client": "Acme Corp", "priority": "high", "dueDate": "2024-01-19", "checklist": []}

Input: "Follow up with John at TechStart about the demo. Need to: send pricing, schedule call, prepare slides"
Output: {"title": "Follow up about demo", "client": "TechStart", "priority": "medium", "checklist": [{"text": "Send pricing"}, {"text": "Schedule call"}, {"text": "Prepare slides"}]}

Input: "Call Globex tomorrow at 3pm, remind me 30 minutes before"
Output: {"title": "Call Globex", "client": "Globex", "priority": "medium", "dueDate": "2024-01-16T15:00:00-05:00", "remindMeInMinutes": 30, "checklist": []}

Input: "urgent: fix bug in login page"
Output: {"title": "Fix bug in login page", "priority": "high", "checklist": []}`

func buildSystemPrompt(knownClients []string) string {
	if len(knownClients) == 0 {
		return systemPrompt
	}
	return systemPrompt + fmt.Sprintf(
		"\n\nExisting clients in the system: %s. If the message mentions a client similar to one of these, use the existing client name.",
		strings.Join(knownClients, ", "))
}

func buildUserPrompt(message string, now time.Time) string {
	return fmt.Sprintf("Parse this message into a task: %q\n\nToday's date is %s (%s)",
		message, now.Format("2006-01-02"), now.Format("Monday, 15:04 MST"))
}

func buildSummaryPrompt(lines []string) string {
	return "Summarize these tasks in a brief, friendly message:\n" + strings.Join(lines, "\n")
}
