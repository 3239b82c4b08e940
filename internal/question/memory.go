package question

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
)

// MemoryPool keeps questions grouped by category and samples without
// repetition inside a single request.
type MemoryPool struct {
	mu         sync.RWMutex
	byCategory map[string][]Question
	names      map[string]string // lower-cased key -> display name
	perm       func(n int) []int
}

var _ Pool = (*MemoryPool)(nil)

// NewMemoryPool builds a pool from already validated questions.
func NewMemoryPool(questions []Question) *MemoryPool {
	p := &MemoryPool{perm: rand.Perm}
	p.Replace(questions)
	return p
}

// Replace swaps the pool contents atomically.
func (p *MemoryPool) Replace(questions []Question) {
	byCategory := make(map[string][]Question)
	names := make(map[string]string)
	for _, q := range questions {
		key := categoryKey(q.Category)
		if _, ok := names[key]; !ok {
			names[key] = q.Category
		}
		byCategory[key] = append(byCategory[key], q.Clone())
	}

	p.mu.Lock()
	p.byCategory = byCategory
	p.names = names
	p.mu.Unlock()
}

// Questions returns up to count questions. Unknown categories yield an empty slice.
func (p *MemoryPool) Questions(_ context.Context, category string, count int) ([]Question, error) {
	if count <= 0 {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	var candidates []Question
	if strings.TrimSpace(category) == "" {
		for _, qs := range p.byCategory {
			candidates = append(candidates, qs...)
		}
	} else {
		candidates = p.byCategory[categoryKey(category)]
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	if count > len(candidates) {
		count = len(candidates)
	}
	order := p.perm(len(candidates))
	out := make([]Question, 0, count)
	for _, idx := range order[:count] {
		out = append(out, candidates[idx].Clone())
	}
	return out, nil
}

// Categories lists category display names alphabetically.
func (p *MemoryPool) Categories(_ context.Context) ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]string, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

// Len reports the total number of questions.
func (p *MemoryPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := 0
	for _, qs := range p.byCategory {
		n += len(qs)
	}
	return n
}

func categoryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
