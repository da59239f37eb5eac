package bot

import "strings"

// Command is what an inbound message asks the bot to do.
type Command string

const (
	CommandHelp        Command = "help"
	CommandShowTasks   Command = "show_tasks"
	CommandListClients Command = "list_clients"
	CommandListStages  Command = "list_stages"
	CommandCreateTask  Command = "create_task"
)

var greetingPatterns = []string{
	"hi", "hello", "hey", "howdy", "yo",
	"good morning", "good afternoon", "good evening",
}

// Route classifies a message by lowercase prefix or equality. Anything that
// is not a recognized command is a task description.
func Route(text string) Command {
	msg := strings.ToLower(strings.TrimSpace(text))

	switch {
	case msg == "" || msg == "help" || isGreeting(msg):
		return CommandHelp
	case strings.HasPrefix(msg, "show"), strings.HasPrefix(msg, "list tasks"), msg == "tasks":
		return CommandShowTasks
	case strings.HasPrefix(msg, "list clients"), strings.HasPrefix(msg, "clients"):
		return CommandListClients
	case strings.HasPrefix(msg, "stages"), msg == "list stages":
		return CommandListStages
	default:
		return CommandCreateTask
	}
}

// isGreeting matches a bare greeting, optionally followed by punctuation.
func isGreeting(msg string) bool {
	msg = strings.TrimRight(msg, "!.,? ")
	for _, pattern := range greetingPatterns {
		if msg == pattern || msg == pattern+" there" {
			return true
		}
	}
	return false
}
