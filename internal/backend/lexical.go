package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/tsukimori/sakuin/internal/analyzer"
	"github.com/tsukimori/sakuin/internal/corpus"
	"github.com/tsukimori/sakuin/internal/suggestion"
	"github.com/tsukimori/sakuin/internal/vocab"
)

func init() {
	Register("lexical", newLexical)
}

const lexicalModelFormat = "lexical/v1"

// Lexical is the lexicon-based tagger: it matches vocabulary labels
// occurring in the document text. It has a built-in default model (the
// vocabulary itself), so it can suggest without training. Learning
// accumulates per-subject priors from gold assignments, which boost
// subjects that are actually used in the collection.
type Lexical struct {
	base
	analyzer analyzer.Analyzer

	// phrases maps a tokenized label (tokens joined by spaces) to the
	// subjects carrying that label. Built once from the vocabulary.
	phrases   map[string][]string
	maxTokens int

	priors lexicalPriors
}

type lexicalPriors struct {
	TrainedDocs   int            `json:"trained_docs"`
	SubjectCounts map[string]int `json:"subject_counts"`
}

func newLexical(cfg Config, deps Deps) (Backend, error) {
	if deps.Vocabulary == nil {
		return nil, fmt.Errorf("backend %q: lexical requires a vocabulary", cfg.ID)
	}
	if deps.Analyzer == nil {
		return nil, fmt.Errorf("backend %q: lexical requires an analyzer", cfg.ID)
	}
	l := &Lexical{
		base:     newBase(cfg.ID, cfg.Kind),
		analyzer: deps.Analyzer,
		phrases:  make(map[string][]string),
		priors:   lexicalPriors{SubjectCounts: make(map[string]int)},
	}
	for _, subj := range deps.Vocabulary.Subjects() {
		tokens := deps.Analyzer.Tokenize(subj.Label)
		if len(tokens) == 0 {
			continue
		}
		phrase := strings.Join(tokens, " ")
		l.phrases[phrase] = append(l.phrases[phrase], subj.ID)
		if len(tokens) > l.maxTokens {
			l.maxTokens = len(tokens)
		}
	}
	// The vocabulary is the default model.
	l.trained = true
	return l, nil
}

var _ Snapshotter = (*Lexical)(nil)

// Learn accumulates subject usage priors from gold assignments. Supports
// incremental updates; a full retrain resets the priors only, never the
// label lexicon.
func (l *Lexical) Learn(ctx context.Context, docs []corpus.Document, incremental bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !incremental {
		l.priors = lexicalPriors{SubjectCounts: make(map[string]int)}
	}
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, subj := range doc.Subjects {
			l.priors.SubjectCounts[subj]++
		}
		if doc.HasSubjects() {
			l.priors.TrainedDocs++
		}
	}
	return nil
}

// Suggest counts label occurrences in the text, weighting longer label
// matches higher and applying learned priors when present.
func (l *Lexical) Suggest(ctx context.Context, text string) (suggestion.Result, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tokens := l.analyzer.Tokenize(text)
	if len(tokens) == 0 {
		return suggestion.Result{}, nil
	}

	hits := make(map[string]float64)
	for width := 1; width <= l.maxTokens; width++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := 0; i+width <= len(tokens); i++ {
			phrase := strings.Join(tokens[i:i+width], " ")
			subjects, ok := l.phrases[phrase]
			if !ok {
				continue
			}
			// Multi-word label matches are stronger evidence.
			weight := float64(width)
			for _, subj := range subjects {
				hits[subj] += weight
			}
		}
	}
	if len(hits) == 0 {
		return suggestion.Result{}, nil
	}

	for subj := range hits {
		if n := l.priors.SubjectCounts[subj]; n > 0 {
			hits[subj] *= 1 + math.Log(1+float64(n))
		}
	}
	return suggestion.Limit(
		suggestion.Normalize(suggestion.FromMap(hits), suggestion.NormalizeMinMax),
		maxCandidates, 0), nil
}

// Snapshot serializes the learned priors. The label lexicon is rebuilt
// from the vocabulary at construction and is not persisted.
func (l *Lexical) Snapshot() (string, []byte, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	blob, err := json.Marshal(l.priors)
	if err != nil {
		return "", nil, fmt.Errorf("snapshot lexical priors: %w", err)
	}
	return lexicalModelFormat, blob, nil
}

// Restore loads previously learned priors.
func (l *Lexical) Restore(format string, blob []byte) error {
	if format != lexicalModelFormat {
		return fmt.Errorf("backend %q: unsupported model format %q", l.id, format)
	}
	var priors lexicalPriors
	if err := json.Unmarshal(blob, &priors); err != nil {
		return fmt.Errorf("restore lexical priors: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if priors.SubjectCounts == nil {
		priors.SubjectCounts = make(map[string]int)
	}
	l.priors = priors
	return nil
}

// RebuildLexicon replaces the label lexicon after a vocabulary reload.
func (l *Lexical) RebuildLexicon(v *vocab.Index) {
	phrases := make(map[string][]string)
	maxTokens := 0
	for _, subj := range v.Subjects() {
		tokens := l.analyzer.Tokenize(subj.Label)
		if len(tokens) == 0 {
			continue
		}
		phrase := strings.Join(tokens, " ")
		phrases[phrase] = append(phrases[phrase], subj.ID)
		if len(tokens) > maxTokens {
			maxTokens = len(tokens)
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.phrases = phrases
	l.maxTokens = maxTokens
}
