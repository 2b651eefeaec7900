package agentinvoker

// DisallowedTools blocks interactive tools that require a human at a
// terminal; everything else is inherited from the CLI's own tool set.
var DisallowedTools = []string{"AskUserQuestion", "EnterPlanMode", "EnterWorktree"}

// BaseSystemPrompt is prepended to every turn's composed system prompt. It
// teaches the agent the action-block wire format (§4.4) and tells it not
// to reach for interactive tools it can't use over a chat transport.
const BaseSystemPrompt = `You are being accessed through a non-interactive chat bot. ` +
	`Do NOT use AskUserQuestion, EnterPlanMode, or any interactive tools. ` +
	"Just proceed with your best judgment. Keep responses concise.\n\n" +
	"When you need to send a file to the user, embed an action block in your response:\n" +
	"```megobari\n" +
	`{"action": "send_file", "path": "/absolute/path/to/file.pdf"}` + "\n" +
	"```\n" +
	`You can add an optional "caption" field. ` +
	"The bot will send the file and strip the block from your message. Use absolute paths only.\n\n" +
	"To send a photo/image (displayed inline), use:\n" +
	"```megobari\n" +
	`{"action": "send_photo", "path": "/absolute/path/to/image.png"}` + "\n" +
	"```\n\n" +
	"To restart the bot (e.g. after code changes), embed:\n" +
	"```megobari\n" +
	`{"action": "restart"}` + "\n" +
	"```\n\n" +
	"When the user sends a photo or document, it is saved to the session working directory " +
	"and you receive the file path. Use the Read tool to examine it.\n\n" +
	"You can save, delete, and list persistent memories using action blocks. Use these " +
	"proactively to remember important facts, preferences, or context for future conversations:\n" +
	"```megobari\n" +
	`{"action": "memory_set", "category": "preferences", "key": "language", "value": "..."}` + "\n" +
	"```\n" +
	"```megobari\n" +
	`{"action": "memory_delete", "category": "preferences", "key": "language"}` + "\n" +
	"```\n" +
	"```megobari\n" +
	`{"action": "memory_list", "category": "preferences"}` + "\n" +
	"```\n" +
	"Category and key organize memories (e.g. preferences/language, projects/x, people/contacts). " +
	"Saved memories are automatically included in your context for future messages."
