package agent

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"adorable/internal/files"
)

// maxPromptFileBytes bounds each file body included in edit prompts.
const maxPromptFileBytes = 24 * 1024

const generatePrompt = `You are Adorable, an AI editor that generates production-grade web applications.

CRITICAL INSTRUCTIONS
1. ALWAYS CALL THE TOOL: call "emit_files" to output code.
2. NO PLACEHOLDERS: full, working code only.

WIRING RULE
If you create a new component (e.g. src/components/LandingPage.jsx) you MUST also
update src/App.jsx to import and render it. Never leave App.jsx showing the
default template message.

FILE SYSTEM RULES
1. Self-contained: if you import it, you must create it.
2. Use .jsx for components.
3. Use lucide-react icons with named imports, e.g. import { Home } from "lucide-react".
4. Do not modify package.json, package-lock.json or vite.config.js.

TECH STACK
- React + Vite + Tailwind CSS
- Lucide React (icons)
- JavaScript only, no TypeScript in generated files
`

const editPrompt = `You are Adorable, an AI editor that modifies an existing React + Vite + Tailwind project.

RULES
1. Call "apply_changes" for every file you create, modify or delete.
2. Always send the COMPLETE file content for create and modify actions.
3. Keep src/App.jsx importing and rendering the main component.
4. Do not modify package.json, package-lock.json or vite.config.js.
5. Use "say" to reply to the user when no code change is needed.
`

const fixPrompt = `You are Adorable, an AI editor repairing a React + Vite + Tailwind project whose production build failed.

RULES
1. Read the build log, find the root cause and fix it with "apply_changes".
2. Send the COMPLETE file content for every file you change.
3. Make the smallest change that makes "npm run build" succeed.
4. A missing import usually means the file was never created: create it.
5. Do not modify package.json, package-lock.json or vite.config.js.
`

// buildSystemPrompt creates the system prompt for a mode.
func buildSystemPrompt(mode Mode, base files.FileSet) string {
	var sb strings.Builder

	switch mode {
	case ModeGenerate:
		sb.WriteString(generatePrompt)
		sb.WriteString("\nBASE FILES\n")
		for _, p := range base.Paths() {
			fmt.Fprintf(&sb, "- %s\n", p)
		}
		return sb.String()
	case ModeFix:
		sb.WriteString(fixPrompt)
	default:
		sb.WriteString(editPrompt)
	}

	sb.WriteString("\nCURRENT FILES\n")
	for _, p := range base.Paths() {
		content := base[p]
		if len(content) > maxPromptFileBytes {
			content = truncateRunes(content, maxPromptFileBytes) + "\n... (truncated)"
		}
		fmt.Fprintf(&sb, "\n--- %s ---\n%s\n", p, content)
	}
	return sb.String()
}

// truncateRunes cuts s to at most n bytes without splitting a rune.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// fixInstruction wraps a build log as the user message of a fix run.
func fixInstruction(log string) string {
	return "The production build failed. Fix the project so it builds.\n\nBuild output:\n```\n" +
		strings.TrimSpace(log) + "\n```"
}
