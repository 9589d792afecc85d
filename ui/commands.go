package ui

import (
	"strings"
)

// commandKind identifies a slash command typed into the input box.
type commandKind int

const (
	cmdNone commandKind = iota
	cmdUnknown
	cmdNew
	cmdSessions
	cmdLoad
	cmdDelete
	cmdRename
	cmdTools
	cmdAuto
	cmdStatus
	cmdSearch
	cmdExport
	cmdClear
	cmdModel
	cmdRun
	cmdRefresh
	cmdHelp
	cmdQuit
)

type command struct {
	kind commandKind
	name string
	args []string
	rest string
}

var commandNames = map[string]commandKind{
	"new":      cmdNew,
	"sessions": cmdSessions,
	"load":     cmdLoad,
	"delete":   cmdDelete,
	"rename":   cmdRename,
	"tools":    cmdTools,
	"auto":     cmdAuto,
	"status":   cmdStatus,
	"search":   cmdSearch,
	"export":   cmdExport,
	"clear":    cmdClear,
	"model":    cmdModel,
	"run":      cmdRun,
	"refresh":  cmdRefresh,
	"help":     cmdHelp,
	"quit":     cmdQuit,
	"exit":     cmdQuit,
}

// parseCommand recognizes "/name args..." input. Anything else is a chat
// message and yields cmdNone. A double slash escapes a leading slash.
func parseCommand(input string) command {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") || strings.HasPrefix(input, "//") {
		return command{kind: cmdNone}
	}

	name, rest, _ := strings.Cut(input[1:], " ")
	name = strings.ToLower(name)
	rest = strings.TrimSpace(rest)

	kind, ok := commandNames[name]
	if !ok {
		kind = cmdUnknown
	}
	return command{kind: kind, name: name, args: strings.Fields(rest), rest: rest}
}

// unescapeMessage strips the escape from a "//" prefixed message.
func unescapeMessage(input string) string {
	trimmed := strings.TrimSpace(input)
	if strings.HasPrefix(trimmed, "//") {
		return trimmed[1:]
	}
	return input
}

// parseSwitch reads on/off style arguments. With no argument the current
// value is flipped.
func parseSwitch(args []string, current bool) (bool, bool) {
	if len(args) == 0 {
		return !current, true
	}
	switch strings.ToLower(args[0]) {
	case "on", "true", "yes", "1":
		return true, true
	case "off", "false", "no", "0":
		return false, true
	}
	return current, false
}

// extractFileRefs pulls "@path" mentions out of a message. The mentions stay
// in the text; the returned refs are deduplicated in order of appearance.
func extractFileRefs(text string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		if !strings.HasPrefix(word, "@") || len(word) < 2 {
			continue
		}
		ref := strings.TrimRight(word[1:], ",.;:!?)\"'")
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}

// currentMention returns the "@" token being typed at the end of input, or
// false when the cursor is not inside one.
func currentMention(input string) (string, bool) {
	if input == "" || strings.HasSuffix(input, " ") || strings.HasSuffix(input, "\n") {
		return "", false
	}
	idx := strings.LastIndexAny(input, " \n")
	word := input[idx+1:]
	if !strings.HasPrefix(word, "@") {
		return "", false
	}
	return word[1:], true
}

// replaceMention swaps the trailing "@" token for the chosen path.
func replaceMention(input, path string) string {
	idx := strings.LastIndexAny(input, " \n")
	return input[:idx+1] + "@" + path + " "
}

var commandHelp = [][2]string{
	{"/new", "Start a new session"},
	{"/sessions", "Browse sessions"},
	{"/load <n>", "Open session n from the list"},
	{"/delete [n]", "Delete session n, or the current one"},
	{"/rename <title>", "Rename the current session"},
	{"/tools [on|off]", "Toggle tool use"},
	{"/auto [on|off]", "Toggle automatic tool execution"},
	{"/status", "Provider and tool server status"},
	{"/search <text>", "Search every session"},
	{"/export [path]", "Export the session as JSON"},
	{"/clear", "Remove every message in the session"},
	{"/model <provider> [model]", "Switch provider or model"},
	{"/run <tool> [json]", "Run one tool now, without the model"},
	{"/refresh", "Reload settings and restart tool servers"},
	{"/help", "Show keys and commands"},
}
