package transcript

import (
	"encoding/json"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// EvidenceType classifies tool activity shown to the audience.
type EvidenceType string

const (
	EvidenceWebSearch EvidenceType = "web-search"
	EvidenceWebFetch  EvidenceType = "web-fetch"
	EvidenceBash      EvidenceType = "bash"
	EvidenceCodeWrite EvidenceType = "code-write"
)

const maxEvidenceContent = 3000

// SearchLink is one result of a web search.
type SearchLink struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// Evidence is a record of something the agent looked up, ran or wrote.
type Evidence struct {
	ID        string       `json:"id"`
	Type      EvidenceType `json:"type"`
	Title     string       `json:"title"`
	Content   string       `json:"content"`
	Links     []SearchLink `json:"links,omitempty"`
	URL       string       `json:"url,omitempty"`
	Query     string       `json:"query,omitempty"`
	Command   string       `json:"command,omitempty"`
	FilePath  string       `json:"filePath,omitempty"`
	IsError   bool         `json:"isError,omitempty"`
	Timestamp string       `json:"timestamp,omitempty"`
}

var (
	linksArrayPattern  = regexp.MustCompile(`\[[\s\S]*?\{[\s\S]*?"title"[\s\S]*?"url"[\s\S]*?\}[\s\S]*?\]`)
	linkObjectPattern  = regexp.MustCompile(`\{"title":"([^"]+)","url":"([^"]+)"(?:,"snippet":"([^"]*)")?\}`)
	linksPrefixPattern = regexp.MustCompile(`Links:\s*\[[\s\S]*?\]`)
	queryLinePattern   = regexp.MustCompile(`(?m)^Web search results for query: "(.+?)"`)
	chainedPattern     = regexp.MustCompile(`[&|;]`)
	simpleCmdPattern   = regexp.MustCompile(`^(ls|pwd|echo|cat|mkdir|which|sync|cd)\b`)
)

type toolInput struct {
	Query    string `json:"query"`
	URL      string `json:"url"`
	Prompt   string `json:"prompt"`
	Command  string `json:"command"`
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

// ExtractEvidence pairs every tool_use in assistant entries with its
// tool_result and returns evidence in encounter order.
func ExtractEvidence(entries []Entry) []Evidence {
	results := make(map[string]Block)
	for _, entry := range entries {
		if entry.Type != TypeUser || entry.Message == nil || entry.Message.Content.IsString {
			continue
		}
		for _, b := range entry.Message.Content.Blocks {
			if b.Type == BlockToolResult {
				results[b.ToolUseID] = b
			}
		}
	}

	evidence := []Evidence{}
	for _, entry := range entries {
		if entry.Type != TypeAssistant || entry.Message == nil {
			continue
		}

		for _, b := range entry.Message.Content.Blocks {
			if b.Type != BlockToolUse {
				continue
			}

			result, hasResult := results[b.ID]
			var resultText string
			if hasResult {
				resultText = result.ResultText()
			}

			var in toolInput
			if len(b.Input) > 0 {
				_ = json.Unmarshal(b.Input, &in)
			}

			ev, ok := toEvidence(b, in, resultText)
			if !ok {
				continue
			}
			ev.ID = b.ID
			ev.IsError = hasResult && result.IsError
			ev.Timestamp = entry.Timestamp
			evidence = append(evidence, ev)
		}
	}

	return evidence
}

func toEvidence(b Block, in toolInput, resultText string) (Evidence, bool) {
	switch b.Name {
	case "WebSearch":
		if in.Query == "" {
			return Evidence{}, false
		}
		ev := Evidence{
			Type:    EvidenceWebSearch,
			Title:   "Search: " + in.Query,
			Content: searchSummary(resultText),
			Query:   in.Query,
		}
		if links := parseSearchLinks(resultText); len(links) > 0 {
			ev.Links = links
		}
		return ev, true

	case "WebFetch":
		if in.URL == "" {
			return Evidence{}, false
		}
		return Evidence{
			Type:    EvidenceWebFetch,
			Title:   "Web reference: " + hostname(in.URL),
			Content: truncate(resultText, maxEvidenceContent),
			URL:     in.URL,
			Query:   in.Prompt,
		}, true

	case "Bash":
		if in.Command == "" || isSoloSimpleCommand(in.Command) {
			return Evidence{}, false
		}
		return Evidence{
			Type:    EvidenceBash,
			Title:   "Code execution",
			Content: truncate(resultText, maxEvidenceContent),
			Command: in.Command,
		}, true

	case "Write":
		if in.FilePath == "" || strings.Contains(in.FilePath, ".claude/") {
			return Evidence{}, false
		}
		return Evidence{
			Type:     EvidenceCodeWrite,
			Title:    "File written: " + path.Base(in.FilePath),
			Content:  truncate(in.Content, maxEvidenceContent),
			FilePath: in.FilePath,
		}, true
	}

	return Evidence{}, false
}

func isSoloSimpleCommand(command string) bool {
	cmd := strings.TrimSpace(command)
	if chainedPattern.MatchString(cmd) {
		return false
	}
	return simpleCmdPattern.MatchString(cmd)
}

// parseSearchLinks reads the JSON link array out of a search result, falling
// back to matching individual link objects.
func parseSearchLinks(text string) []SearchLink {
	var links []SearchLink

	if match := linksArrayPattern.FindString(text); match != "" {
		var parsed []map[string]any
		if err := json.Unmarshal([]byte(match), &parsed); err == nil {
			for _, item := range parsed {
				title, _ := item["title"].(string)
				link, _ := item["url"].(string)
				if title == "" || link == "" {
					continue
				}
				snippet, _ := item["snippet"].(string)
				links = append(links, SearchLink{Title: title, URL: link, Snippet: snippet})
			}
		}
	}

	if len(links) == 0 {
		for _, m := range linkObjectPattern.FindAllStringSubmatch(text, -1) {
			links = append(links, SearchLink{Title: m[1], URL: m[2], Snippet: m[3]})
		}
	}

	return links
}

// searchSummary drops the raw link JSON from a search result.
func searchSummary(text string) string {
	var queryLine string
	if m := queryLinePattern.FindStringSubmatch(text); m != nil {
		queryLine = `"` + m[1] + `" search results`
	}

	cleaned := replaceFirst(linksPrefixPattern, text)
	cleaned = replaceFirst(linksArrayPattern, cleaned)
	cleaned = strings.TrimSpace(cleaned)

	if cleaned != "" {
		return cleaned
	}
	return queryLine
}

func replaceFirst(re *regexp.Regexp, s string) string {
	loc := re.FindStringIndex(s)
	if loc == nil {
		return s
	}
	return s[:loc[0]] + s[loc[1]:]
}

func hostname(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
