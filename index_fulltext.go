package kgraph

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// --------------------------------------------------------------------------
// Full-text index: lowercased alphanumeric runs feed an inverted index from
// token to posting set. Queries tokenize the same way and intersect (AND
// semantics); a query with no known token matches nothing, never errors.
// --------------------------------------------------------------------------

type fulltextIndex struct {
	definition IndexDef

	mu       sync.RWMutex
	postings map[string]map[NodeID]struct{}
	// tokens remembers what each node contributed so removal does not
	// need the old property value.
	tokens map[NodeID][]string
}

func newFulltextIndex(def IndexDef) *fulltextIndex {
	return &fulltextIndex{
		definition: def,
		postings:   make(map[string]map[NodeID]struct{}),
		tokens:     make(map[NodeID][]string),
	}
}

func (idx *fulltextIndex) def() *IndexDef { return &idx.definition }

func (idx *fulltextIndex) insert(n *Node) error {
	if !n.HasLabel(idx.definition.Label) {
		return nil
	}
	text, ok := n.Props[idx.definition.Properties[0]].(string)
	if !ok {
		return nil
	}
	toks := tokenizeText(text)
	if len(toks) == 0 {
		return nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(n.ID)
	idx.tokens[n.ID] = toks
	for _, tok := range toks {
		set := idx.postings[tok]
		if set == nil {
			set = make(map[NodeID]struct{})
			idx.postings[tok] = set
		}
		set[n.ID] = struct{}{}
	}
	return nil
}

func (idx *fulltextIndex) remove(n *Node) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeLocked(n.ID)
	return nil
}

func (idx *fulltextIndex) removeLocked(id NodeID) {
	for _, tok := range idx.tokens[id] {
		if set := idx.postings[tok]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(idx.postings, tok)
			}
		}
	}
	delete(idx.tokens, id)
}

// search returns the IDs of nodes containing every token of the query, in
// ascending ID order for determinism.
func (idx *fulltextIndex) search(query string) []NodeID {
	toks := tokenizeText(query)
	if len(toks) == 0 {
		return nil
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var result map[NodeID]struct{}
	for _, tok := range toks {
		set := idx.postings[tok]
		if len(set) == 0 {
			return nil
		}
		if result == nil {
			result = make(map[NodeID]struct{}, len(set))
			for id := range set {
				result[id] = struct{}{}
			}
			continue
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
		if len(result) == 0 {
			return nil
		}
	}
	ids := make([]NodeID, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// tokenizeText splits text into lowercased alphanumeric runs, dropping
// duplicates while preserving first occurrence order.
func tokenizeText(text string) []string {
	var toks []string
	seen := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if _, dup := seen[tok]; dup {
			return
		}
		seen[tok] = struct{}{}
		toks = append(toks, tok)
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		} else {
			flush()
		}
	}
	flush()
	return toks
}
