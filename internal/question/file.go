package question

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk layout of one category file. JSON files parse
// through the same YAML decoder.
type fileDocument struct {
	Category  string       `yaml:"category"`
	Questions []fileRecord `yaml:"questions"`
}

type fileRecord struct {
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectIndex  *int     `yaml:"correct_option_index"`
	CorrectOption string   `yaml:"correct_option"`
	Category      string   `yaml:"category"`
	Solution      string   `yaml:"solution"`
}

// FilePool serves questions loaded from a directory of YAML/JSON files.
type FilePool struct {
	*MemoryPool
	dir    string
	logger zerolog.Logger
}

// NewFilePool creates an empty pool bound to dir. Call Load before use.
func NewFilePool(dir string, logger zerolog.Logger) *FilePool {
	return &FilePool{
		MemoryPool: NewMemoryPool(nil),
		dir:        dir,
		logger:     logger.With().Str("component", "question_pool").Logger(),
	}
}

// Load (re)reads every question file in the directory. Invalid records are
// skipped; an unreadable directory is an error and keeps the previous contents.
func (p *FilePool) Load(ctx context.Context) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return fmt.Errorf("read questions dir: %w", err)
	}

	var all []Question
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if entry.IsDir() || !isQuestionFile(entry.Name()) {
			continue
		}
		path := filepath.Join(p.dir, entry.Name())
		qs, err := p.loadFile(path)
		if err != nil {
			p.logger.Warn().Err(err).Str("file", path).Msg("skip question file")
			continue
		}
		all = append(all, qs...)
	}

	p.Replace(all)
	p.logger.Info().Int("questions", len(all)).Str("dir", p.dir).Msg("question pool loaded")
	return nil
}

func (p *FilePool) loadFile(path string) ([]Question, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc fileDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}

	defaultCategory := strings.TrimSpace(doc.Category)
	if defaultCategory == "" {
		defaultCategory = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	out := make([]Question, 0, len(doc.Questions))
	for i, rec := range doc.Questions {
		q, err := rec.toQuestion(defaultCategory)
		if err != nil {
			p.logger.Warn().Err(err).Str("file", path).Int("index", i).Msg("skip invalid question")
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (r fileRecord) toQuestion(defaultCategory string) (Question, error) {
	q := Question{
		Text:     strings.TrimSpace(r.Question),
		Category: defaultCategory,
		Solution: strings.TrimSpace(r.Solution),
	}
	if c := strings.TrimSpace(r.Category); c != "" {
		q.Category = c
	}
	for _, opt := range r.Options {
		q.Options = append(q.Options, strings.TrimSpace(opt))
	}

	q.CorrectIndex = -1
	switch {
	case r.CorrectIndex != nil:
		q.CorrectIndex = *r.CorrectIndex
	case r.CorrectOption != "":
		want := strings.TrimSpace(r.CorrectOption)
		for i, opt := range q.Options {
			if opt == want {
				q.CorrectIndex = i
				break
			}
		}
	}

	if err := q.Validate(); err != nil {
		return Question{}, err
	}
	return q, nil
}

func isQuestionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
