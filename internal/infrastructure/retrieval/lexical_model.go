package retrieval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
)

// LexicalModel is a fitted TF-IDF vectorizer together with its document-term
// matrix, one sparse row per registry chunk.
type LexicalModel struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
	Rows       []SparseRow    `json:"rows"`
}

type SparseRow struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// FitLexicalModel fits smooth-idf TF-IDF weights over texts and returns
// L2-normalized rows.
func FitLexicalModel(texts []string) *LexicalModel {
	docTokens := make([][]string, len(texts))
	docFreq := make(map[string]int)
	for i, text := range texts {
		tokens := lexicalTokens(text)
		docTokens[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, token := range tokens {
			if _, ok := seen[token]; ok {
				continue
			}
			seen[token] = struct{}{}
			docFreq[token]++
		}
	}

	terms := make([]string, 0, len(docFreq))
	for term := range docFreq {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	model := &LexicalModel{
		Vocabulary: make(map[string]int, len(terms)),
		IDF:        make([]float64, len(terms)),
		Rows:       make([]SparseRow, len(texts)),
	}
	n := float64(len(texts))
	for col, term := range terms {
		model.Vocabulary[term] = col
		model.IDF[col] = math.Log((1+n)/(1+float64(docFreq[term]))) + 1
	}
	for i, tokens := range docTokens {
		model.Rows[i] = model.weigh(tokens)
	}
	return model
}

// Transform maps text into the model's vector space. Unknown terms are dropped.
func (m *LexicalModel) Transform(text string) SparseRow {
	return m.weigh(lexicalTokens(text))
}

func (m *LexicalModel) weigh(tokens []string) SparseRow {
	counts := make(map[int]float64, len(tokens))
	for _, token := range tokens {
		col, ok := m.Vocabulary[token]
		if !ok {
			continue
		}
		counts[col]++
	}
	if len(counts) == 0 {
		return SparseRow{}
	}

	cols := make([]int, 0, len(counts))
	for col := range counts {
		cols = append(cols, col)
	}
	sort.Ints(cols)

	row := SparseRow{Indices: cols, Values: make([]float64, len(cols))}
	var sum float64
	for i, col := range cols {
		w := counts[col] * m.IDF[col]
		row.Values[i] = w
		sum += w * w
	}
	if sum > 0 {
		norm := math.Sqrt(sum)
		for i := range row.Values {
			row.Values[i] /= norm
		}
	}
	return row
}

func (m *LexicalModel) validate() error {
	if m == nil {
		return errors.New("lexical model is empty")
	}
	if len(m.IDF) != len(m.Vocabulary) {
		return fmt.Errorf("lexical model: %d idf weights for %d terms", len(m.IDF), len(m.Vocabulary))
	}
	for term, col := range m.Vocabulary {
		if col < 0 || col >= len(m.IDF) {
			return fmt.Errorf("lexical model: term %q maps to column %d", term, col)
		}
	}
	for i, row := range m.Rows {
		if len(row.Indices) != len(row.Values) {
			return fmt.Errorf("lexical model: row %d is malformed", i)
		}
	}
	return nil
}

func ReadLexicalModel(r io.Reader) (*LexicalModel, error) {
	var model LexicalModel
	if err := json.NewDecoder(r).Decode(&model); err != nil {
		return nil, fmt.Errorf("decode lexical model: %w", err)
	}
	if err := model.validate(); err != nil {
		return nil, err
	}
	return &model, nil
}

func WriteLexicalModel(w io.Writer, model *LexicalModel) error {
	if err := json.NewEncoder(w).Encode(model); err != nil {
		return fmt.Errorf("encode lexical model: %w", err)
	}
	return nil
}

// sparseDot multiplies a query held as column weights by a matrix row.
func sparseDot(q map[int]float64, row SparseRow) float64 {
	var dot float64
	for i, col := range row.Indices {
		if w, ok := q[col]; ok {
			dot += w * row.Values[i]
		}
	}
	return dot
}

func sparseNorm(row SparseRow) float64 {
	var sum float64
	for _, v := range row.Values {
		sum += v * v
	}
	return math.Sqrt(sum)
}
