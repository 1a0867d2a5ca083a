package builtin

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/haivivi/voicebridge/pkg/s2s/tool"
)

// KBEntry is one knowledge-base document.
type KBEntry struct {
	Title   string `json:"title" yaml:"title"`
	Content string `json:"content" yaml:"content"`
}

type kbArgs struct {
	Query string `json:"query"`
}

type kbHit struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// kbMaxHits bounds the answer so the model reads back a short list.
const kbMaxHits = 3

// KnowledgeBase returns the retrieval tool over a fixed set of entries.
// Matching is term overlap between the query and entry text; entries with no
// overlapping term are never returned.
func KnowledgeBase(entries []KBEntry) tool.Tool {
	return tool.MustNewFunc("getkbtool", "Searches the knowledge base for information relevant to the query.",
		func(ctx context.Context, args kbArgs) (any, error) {
			hits := kbSearch(entries, args.Query)
			if len(hits) == 0 {
				return "No relevant information found.", nil
			}
			return hits, nil
		})
}

func kbSearch(entries []KBEntry, query string) []kbHit {
	terms := kbTerms(query)
	if len(terms) == 0 {
		return nil
	}

	type scored struct {
		entry KBEntry
		score int
	}
	var matched []scored
	for _, e := range entries {
		text := kbTerms(e.Title + " " + e.Content)
		set := make(map[string]bool, len(text))
		for _, w := range text {
			set[w] = true
		}
		score := 0
		for _, term := range terms {
			if set[term] {
				score++
			}
		}
		if score > 0 {
			matched = append(matched, scored{entry: e, score: score})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool { return matched[i].score > matched[j].score })
	if len(matched) > kbMaxHits {
		matched = matched[:kbMaxHits]
	}
	hits := make([]kbHit, len(matched))
	for i, m := range matched {
		hits[i] = kbHit{Title: m.entry.Title, Content: m.entry.Content}
	}
	return hits
}

func kbTerms(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
