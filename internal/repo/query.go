package repo

import (
	"strings"
	"unicode"
)

// webQuery is keyword input in websearch syntax: bare words are ANDed,
// "quoted text" is a phrase, OR joins its neighbours and a leading '-'
// excludes a term.
type webQuery struct {
	groups  [][]string // AND of OR-groups; each term is a space separated phrase
	exclude []string
}

func parseWebQuery(input string) webQuery {
	var (
		q       webQuery
		pending bool
		runes   = []rune(input)
	)
	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			i++
			continue
		}
		negate := false
		if runes[i] == '-' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			negate = true
			i++
		}
		var raw string
		quoted := runes[i] == '"'
		if quoted {
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			raw = string(runes[i+1 : end])
			i = end + 1
		} else {
			end := i
			for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '"' {
				end++
			}
			raw = string(runes[i:end])
			i = end
		}
		if !quoted && !negate && strings.EqualFold(raw, "or") {
			pending = len(q.groups) > 0
			continue
		}
		term := strings.Join(termWords(raw), " ")
		if term == "" {
			continue
		}
		switch {
		case negate:
			q.exclude = append(q.exclude, term)
		case pending:
			last := len(q.groups) - 1
			q.groups[last] = append(q.groups[last], term)
		default:
			q.groups = append(q.groups, []string{term})
		}
		pending = false
	}
	return q
}

func termWords(raw string) []string {
	return strings.FieldsFunc(raw, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// empty reports a query that can match nothing: without a positive term
// there is nothing to rank or highlight.
func (q webQuery) empty() bool {
	return len(q.groups) == 0
}

// fts5 renders the query as an FTS5 MATCH expression.
func (q webQuery) fts5() string {
	if q.empty() {
		return ""
	}
	quote := func(term string) string { return `"` + term + `"` }
	ands := make([]string, 0, len(q.groups))
	for _, group := range q.groups {
		ors := make([]string, 0, len(group))
		for _, term := range group {
			ors = append(ors, quote(term))
		}
		ands = append(ands, "("+strings.Join(ors, " OR ")+")")
	}
	expr := strings.Join(ands, " AND ")
	if len(q.exclude) == 0 {
		return expr
	}
	nots := make([]string, 0, len(q.exclude))
	for _, term := range q.exclude {
		nots = append(nots, quote(term))
	}
	return "(" + expr + ") NOT (" + strings.Join(nots, " OR ") + ")"
}
