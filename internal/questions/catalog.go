package questions

import (
	"embed"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

//go:embed questions.yaml
var defaultFiles embed.FS

// Pair is one drawn question pair. The imposter receives Imposter, everyone
// else receives Normal. The two are never shown in the same message during a
// round.
type Pair struct {
	Normal   string `yaml:"normal"`
	Imposter string `yaml:"imposter"`
}

type catalogFile struct {
	Pairs []Pair `yaml:"pairs"`
}

// Catalog holds the validated question pairs for the process lifetime.
// Malformed entries are a fatal startup error, not a runtime concern.
type Catalog struct {
	pairs []Pair
}

// New loads the embedded default catalog, or the override file when path is
// non-empty. Every pair must have both prompts non-empty.
func New(overridePath string) (*Catalog, error) {
	var raw []byte
	var err error
	if strings.TrimSpace(overridePath) != "" {
		raw, err = os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read questions file: %w", err)
		}
	} else {
		raw, err = fs.ReadFile(defaultFiles, "questions.yaml")
		if err != nil {
			return nil, fmt.Errorf("read embedded questions: %w", err)
		}
	}

	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse questions: %w", err)
	}
	if len(f.Pairs) == 0 {
		return nil, fmt.Errorf("question catalog is empty")
	}
	for i, p := range f.Pairs {
		if strings.TrimSpace(p.Normal) == "" || strings.TrimSpace(p.Imposter) == "" {
			return nil, fmt.Errorf("question pair %d is malformed: both prompts must be non-empty", i)
		}
	}
	return &Catalog{pairs: f.Pairs}, nil
}

// Draw picks one pair uniformly at random.
func (c *Catalog) Draw() Pair {
	return c.pairs[rand.Intn(len(c.pairs))]
}

// Len reports the number of loaded pairs.
func (c *Catalog) Len() int { return len(c.pairs) }
