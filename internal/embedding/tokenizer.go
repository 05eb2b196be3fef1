package embedding

import (
	"hash/fnv"
	"strings"
)

// BERT-style special token IDs.
const (
	clsTokenID = 101
	sepTokenID = 102

	// Hashed word IDs stay below typical BERT vocabulary sizes.
	tokenVocabSize = 30000
)

// Tokenizer turns text into the three padded int64 sequences BERT-family
// ONNX models expect: input_ids, attention_mask, token_type_ids.
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer hashes whitespace-split words into token IDs. It is not
// a real subword tokenizer, but it is deterministic and model-free, which
// is enough for the centroid-based nearest-neighbor backend.
type SimpleTokenizer struct{}

// Tokenize produces [CLS] word-ids... [SEP] padded to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = clsTokenID
	attentionMask[0] = 1

	pos := 1
	for _, word := range SplitWords(text) {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % tokenVocabSize)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = sepTokenID
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace, returning nil for blank input.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic non-negative hash of s.
func HashString(s string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return int(h.Sum32() & 0x7fffffff)
}
