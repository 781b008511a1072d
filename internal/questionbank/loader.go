package questionbank

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wimarka/lakra/internal/models"
)

// Loader reads seed questions from YAML files, one file per language
type Loader struct {
	mu        sync.RWMutex
	questions map[string][]*models.ProficiencyQuestion
}

// NewLoader creates an empty loader
func NewLoader() *Loader {
	return &Loader{
		questions: make(map[string][]*models.ProficiencyQuestion),
	}
}

// LoadFromDir loads every *.yaml and *.yml file in dir. Invalid files are
// logged and skipped.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading seed questions from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return fmt.Errorf("invalid pattern: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load question file", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("seed questions loaded", "files", loaded, "total_files", len(files), "questions", l.Count())
	return nil
}

// LoadFromFile loads one language file. Every question must be valid or
// the whole file is rejected.
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var f questionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	language := models.NormalizeLanguage(f.Language)
	if language == "" {
		return fmt.Errorf("language is required")
	}

	questions := make([]*models.ProficiencyQuestion, 0, len(f.Questions))
	for i, entry := range f.Questions {
		q := &models.ProficiencyQuestion{
			Language:      language,
			Type:          models.QuestionType(entry.Type),
			Question:      entry.Question,
			Options:       entry.Options,
			CorrectAnswer: entry.CorrectAnswer,
			Explanation:   entry.Explanation,
			Difficulty:    models.Difficulty(entry.Difficulty),
			IsActive:      true,
		}
		if entry.Active != nil {
			q.IsActive = *entry.Active
		}
		if q.Difficulty == "" {
			q.Difficulty = models.DifficultyBasic
		}
		if err := q.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i+1, err)
		}
		questions = append(questions, q)
	}

	l.mu.Lock()
	l.questions[language] = append(l.questions[language], questions...)
	l.mu.Unlock()

	slog.Info("question file loaded", "language", language, "questions", len(questions))
	return nil
}

// Get returns the loaded questions for a language
func (l *Loader) Get(language string) []*models.ProficiencyQuestion {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.questions[models.NormalizeLanguage(language)]
}

// Languages returns the loaded languages in sorted order
func (l *Loader) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]string, 0, len(l.questions))
	for lang := range l.questions {
		result = append(result, lang)
	}
	sort.Strings(result)
	return result
}

// Count returns the number of loaded questions
func (l *Loader) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, qs := range l.questions {
		n += len(qs)
	}
	return n
}

// Store is the persistence needed to seed questions
type Store interface {
	SeedQuestion(ctx context.Context, q *models.ProficiencyQuestion) (bool, error)
}

// Seed writes every loaded question to the store. Questions that already
// exist are left untouched, so seeding is idempotent.
func (l *Loader) Seed(ctx context.Context, store Store) (int, error) {
	inserted := 0
	for _, lang := range l.Languages() {
		for _, q := range l.Get(lang) {
			ok, err := store.SeedQuestion(ctx, q)
			if err != nil {
				return inserted, fmt.Errorf("failed to seed %s question: %w", lang, err)
			}
			if ok {
				inserted++
			}
		}
	}

	slog.Info("question bank seeded", "inserted", inserted, "total", l.Count())
	return inserted, nil
}

type questionFile struct {
	Language  string          `yaml:"language"`
	Questions []questionEntry `yaml:"questions"`
}

type questionEntry struct {
	Type          string   `yaml:"type"`
	Difficulty    string   `yaml:"difficulty"`
	Question      string   `yaml:"question"`
	Options       []string `yaml:"options"`
	CorrectAnswer int      `yaml:"correct_answer"`
	Explanation   string   `yaml:"explanation"`
	Active        *bool    `yaml:"active"`
}
