// Package keywords implements case-insensitive keyword hit counting over news text.
package keywords

import (
	"strings"
)

// Scope selects which part of a document is searched.
type Scope string

// Supported scopes. Any other value searches the whole document.
const (
	ScopeTitle Scope = "title"
	ScopeAll   Scope = "all"
)

// Doc is the text a keyword list is matched against.
type Doc struct {
	Title string
	Body  string
}

// List is a named set of keywords. Words may be phrases.
type List struct {
	Name  string
	Words []string
}

// Count returns how many distinct words of the list occur in the scoped text.
// Each word counts at most once regardless of how often it appears.
func (l List) Count(doc Doc, scope Scope) int {
	text := textForScope(doc, scope)
	if text == "" {
		return 0
	}
	n := 0
	for _, w := range l.Words {
		if w == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(w)) {
			n++
		}
	}
	return n
}

// Tally counts every list against the document and returns the counts keyed by list name.
func Tally(doc Doc, scope Scope, lists ...List) map[string]int {
	out := make(map[string]int, len(lists))
	for _, l := range lists {
		out[l.Name] = l.Count(doc, scope)
	}
	return out
}

func textForScope(doc Doc, scope Scope) string {
	switch scope {
	case ScopeTitle:
		return strings.ToLower(doc.Title)
	default:
		return strings.ToLower(doc.Title + " " + doc.Body)
	}
}
