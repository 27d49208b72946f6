// Package search implements the BM25 full-text index over tool schemas
// and the discover/execute meta-tools built on top of it, spec §4.5.
package search

import (
	"math"
	"sort"
	"sync"

	"github.com/Soflution1/McpHub/internal/cacheschema"
)

const (
	defaultK1 = 1.2
	defaultB  = 0.75
)

// Document is one indexed tool: its owning server plus schema.
type Document struct {
	Server string
	Tool   cacheschema.ToolSchema
}

type docEntry struct {
	doc      Document
	termFreq map[string]int
	length   int
}

// Index is a from-scratch BM25 index, rebuilt wholesale on every schema
// cache change (spec §4.5: "Built eagerly at startup; rebuilt when the
// schema cache changes"). Build constructs the fresh entries outside the
// lock and swaps them in under the write lock; Search and Explain read the
// latest ones under the read lock.
type Index struct {
	k1, b float64

	mu      sync.RWMutex
	entries []*docEntry
	df      map[string]int
	avgLen  float64
}

// New returns an empty index using the standard BM25 parameters named in
// spec §4.5 (k1 ≈ 1.2, b ≈ 0.75).
func New() *Index {
	return &Index{k1: defaultK1, b: defaultB}
}

// Build indexes docs, replacing any prior contents.
func (idx *Index) Build(docs []Document) {
	entries := make([]*docEntry, 0, len(docs))
	df := make(map[string]int)
	var totalLen int

	for _, d := range docs {
		tokens := append(Tokenize(d.Tool.Name), Tokenize(d.Tool.Description)...)
		tf := make(map[string]int, len(tokens))
		for _, t := range tokens {
			tf[t]++
		}
		for t := range tf {
			df[t]++
		}
		entries = append(entries, &docEntry{doc: d, termFreq: tf, length: len(tokens)})
		totalLen += len(tokens)
	}

	avg := 0.0
	if len(entries) > 0 {
		avg = float64(totalLen) / float64(len(entries))
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
	idx.df = df
	idx.avgLen = avg
}

// Result is one scored hit.
type Result struct {
	Document Document
	Score    float64
}

// Search returns the top `limit` documents for query, scored by BM25.
// Ties break by server then tool name for determinism.
func (idx *Index) Search(query string, limit int) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.entries) == 0 {
		return nil
	}

	n := float64(len(idx.entries))
	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		df := float64(idx.df[t])
		idf[t] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}

	results := make([]Result, 0, len(idx.entries))
	for _, e := range idx.entries {
		var score float64
		for _, t := range terms {
			tf := float64(e.termFreq[t])
			if tf == 0 {
				continue
			}
			denom := tf + idx.k1*(1-idx.b+idx.b*float64(e.length)/idx.avgLen)
			score += idf[t] * (tf * (idx.k1 + 1)) / denom
		}
		if score > 0 {
			results = append(results, Result{Document: e.doc, Score: score})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if results[i].Document.Server != results[j].Document.Server {
			return results[i].Document.Server < results[j].Document.Server
		}
		return results[i].Document.Tool.Name < results[j].Document.Tool.Name
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// TermScore is one query term's contribution to a document's BM25 score,
// surfaced for debugging via the `search --debug` CLI flag.
type TermScore struct {
	Term         string
	DocFreq      int
	IDF          float64
	TermFreq     int
	Contribution float64
}

// Explanation is a Result annotated with its per-term score breakdown.
type Explanation struct {
	Result
	Terms []TermScore
}

// Explain is Search plus a per-term breakdown (document frequency, idf,
// term frequency, contribution) for tuning k1/b, grounded on
// smart-mcp-proxy-mcpproxy-go's debug_search diagnostic.
func (idx *Index) Explain(query string, limit int) []Explanation {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	terms := Tokenize(query)
	if len(terms) == 0 || len(idx.entries) == 0 {
		return nil
	}

	n := float64(len(idx.entries))
	idf := make(map[string]float64, len(terms))
	for _, t := range terms {
		df := float64(idx.df[t])
		idf[t] = math.Log((n-df+0.5)/(df+0.5) + 1)
	}

	out := make([]Explanation, 0, len(idx.entries))
	for _, e := range idx.entries {
		var score float64
		var breakdown []TermScore
		for _, t := range terms {
			tf := float64(e.termFreq[t])
			if tf == 0 {
				continue
			}
			denom := tf + idx.k1*(1-idx.b+idx.b*float64(e.length)/idx.avgLen)
			contribution := idf[t] * (tf * (idx.k1 + 1)) / denom
			score += contribution
			breakdown = append(breakdown, TermScore{
				Term:         t,
				DocFreq:      idx.df[t],
				IDF:          idf[t],
				TermFreq:     e.termFreq[t],
				Contribution: contribution,
			})
		}
		if score > 0 {
			out = append(out, Explanation{Result: Result{Document: e.doc, Score: score}, Terms: breakdown})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Document.Server != out[j].Document.Server {
			return out[i].Document.Server < out[j].Document.Server
		}
		return out[i].Document.Tool.Name < out[j].Document.Tool.Name
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Len reports how many documents are currently indexed.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// DocumentsFromCache flattens a FullCache into the Document list Build
// expects.
func DocumentsFromCache(full cacheschema.FullCache) []Document {
	var docs []Document
	for server, entry := range full.Servers {
		for _, tool := range entry.Tools {
			docs = append(docs, Document{Server: server, Tool: tool})
		}
	}
	return docs
}
