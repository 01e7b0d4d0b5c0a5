package tools

import (
	"fmt"
	"net/url"
	"strings"
)

// Models routinely misname actions and parameters. The tables below map the
// common mistakes onto the canonical names so calls still land.

// actionSynonyms maps tool name to {wrong action: canonical action}.
var actionSynonyms = map[string]map[string]string{
	"file": {
		"save":   "write",
		"create": "write",
		"open":   "read",
		"remove": "delete",
		"ls":     "list",
	},
	"browser": {
		"visit":      "navigate",
		"open":       "navigate",
		"go":         "navigate",
		"goto":       "navigate",
		"capture":    "screenshot",
		"press":      "click",
		"input":      "type",
		"get_text":   "content",
		"page_text":  "content",
		"javascript": "evaluate",
	},
	"memory": {
		"store":    "save",
		"set":      "save",
		"remember": "save",
		"recall":   "get",
		"find":     "search",
		"forget":   "delete",
	},
}

// paramSynonyms maps {wrong parameter: canonical parameter}, shared across
// tools since the canonical names do not collide.
var paramSynonyms = map[string]string{
	"file_path": "path",
	"filepath":  "path",
	"filename":  "path",
	"file":      "path",
	"cmd":       "command",
	"script":    "command",
	"website":   "url",
	"link":      "url",
	"address":   "url",
	"text":      "content",
	"data":      "content",
	"body":      "content",
	"duration":  "seconds",
	"time":      "seconds",
}

// normalizeArgs rewrites a call's arguments in place-of-copy, returning the
// normalized map and a list of human-readable notes describing what changed.
func normalizeArgs(toolName string, args map[string]any) (map[string]any, []string) {
	out := make(map[string]any, len(args))
	var notes []string

	for key, value := range args {
		canonical := key
		if repl, ok := paramSynonyms[key]; ok {
			if _, taken := args[repl]; !taken {
				canonical = repl
				notes = append(notes, fmt.Sprintf("param %s -> %s", key, repl))
			}
		}
		out[canonical] = value
	}

	// urls:[...] collapses to the first url.
	if raw, ok := out["urls"]; ok {
		if _, taken := out["url"]; !taken {
			if list, ok := raw.([]any); ok && len(list) > 0 {
				if s, ok := list[0].(string); ok {
					out["url"] = s
					notes = append(notes, "param urls[] -> url")
				}
			}
		}
		delete(out, "urls")
	}

	if action, ok := out["action"].(string); ok {
		lower := strings.ToLower(strings.TrimSpace(action))
		if repl, ok := actionSynonyms[toolName][lower]; ok {
			out["action"] = repl
			notes = append(notes, fmt.Sprintf("action %s -> %s", lower, repl))
		} else if lower != action {
			out["action"] = lower
		}
	}

	// browser "search" becomes a navigate to a search-engine results page.
	if toolName == "browser" {
		if action, _ := out["action"].(string); action == "search" {
			query, _ := out["query"].(string)
			if query == "" {
				query, _ = out["url"].(string)
			}
			if query != "" {
				out["action"] = "navigate"
				out["url"] = "https://www.google.com/search?q=" + url.QueryEscape(query)
				notes = append(notes, "action search -> navigate with query url")
			}
		}
	}

	return out, notes
}
