package match

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/logger"
)

// Compile-time interface checks.
var (
	_ domain.RuleStore = (*FileStore)(nil)
	_ domain.RuleStore = (*MemoryStore)(nil)
)

// FileStore persists rules as a yaml list. The list order is meaningful:
// the engine's tie-break depends on rule order, so rules round-trip in
// the order they were saved.
//
// Malformed rule data is a config error, not a startup failure: Load
// logs it and returns an empty rule set.
type FileStore struct {
	path string
	log  *logger.Logger
}

// NewFileStore creates a store backed by the given yaml file.
func NewFileStore(path string, log *logger.Logger) *FileStore {
	return &FileStore{path: path, log: log}
}

// Load reads the rule set. A missing file is an empty rule set; a
// malformed file is logged and also yields an empty rule set.
func (s *FileStore) Load() ([]domain.Rule, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}

	var rules []domain.Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		s.log.Error("rule file %s is malformed, starting with empty rule set: %v", s.path, err)
		return nil, nil
	}
	return normalize(rules), nil
}

// Save writes the rule set, preserving order.
func (s *FileStore) Save(rules []domain.Rule) error {
	data, err := yaml.Marshal(normalize(rules))
	if err != nil {
		return fmt.Errorf("encoding rules: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("writing rule file: %w", err)
	}
	s.log.Info("saved %d rules to %s", len(rules), s.path)
	return nil
}

// Merge folds incoming rules into the stored set and saves the result.
// New prefixes are appended; existing prefixes keep the higher priority
// and take the deduplicated union of must/any/deny/replies.
func (s *FileStore) Merge(incoming []domain.Rule) ([]domain.Rule, error) {
	base, err := s.Load()
	if err != nil {
		return nil, err
	}
	merged := mergeRules(base, incoming)
	if err := s.Save(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// MemoryStore keeps rules in memory. Used in tests and as the fallback
// when no rule file is configured.
type MemoryStore struct {
	mu    sync.Mutex
	rules []domain.Rule
}

// NewMemoryStore creates a store seeded with the given rules.
func NewMemoryStore(rules []domain.Rule) *MemoryStore {
	return &MemoryStore{rules: normalize(rules)}
}

// Load returns a copy of the stored rules.
func (s *MemoryStore) Load() ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// Save replaces the stored rules.
func (s *MemoryStore) Save(rules []domain.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = normalize(rules)
	return nil
}

// Merge folds incoming rules into the stored set.
func (s *MemoryStore) Merge(incoming []domain.Rule) ([]domain.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = mergeRules(s.rules, incoming)
	out := make([]domain.Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// normalize drops nameless rules and trims nil slices to keep the yaml
// round-trip stable.
func normalize(rules []domain.Rule) []domain.Rule {
	out := rules[:0:0]
	for _, r := range rules {
		if r.Prefix == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// mergeRules implements import-as-union: base order is preserved, new
// prefixes append in incoming order.
func mergeRules(base, incoming []domain.Rule) []domain.Rule {
	out := make([]domain.Rule, len(base))
	copy(out, base)

	index := make(map[string]int, len(out))
	for i, r := range out {
		index[r.Prefix] = i
	}

	for _, in := range incoming {
		if in.Prefix == "" {
			continue
		}
		i, exists := index[in.Prefix]
		if !exists {
			index[in.Prefix] = len(out)
			out = append(out, in)
			continue
		}

		cur := out[i]
		if in.Priority > cur.Priority {
			cur.Priority = in.Priority
		}
		cur.Must = uniqueAppend(cur.Must, in.Must)
		cur.Any = uniqueAppend(cur.Any, in.Any)
		cur.Deny = uniqueAppend(cur.Deny, in.Deny)
		cur.Replies = uniqueAppend(cur.Replies, in.Replies)
		out[i] = cur
	}

	return out
}

func uniqueAppend(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		dst = append(dst, s)
		seen[s] = struct{}{}
	}
	return dst
}
