package shield

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/mbd888/safeshield/internal/status"
)

//go:embed descriptions.yaml
var defaultDescriptionsYAML []byte

// Phrase is the wording used to describe a consolidated result.
//
// All is used when every analysed address shares the status. Singular and
// Plural complete "1 address ..." and "N addresses ..." respectively.
type Phrase struct {
	Code     status.Code `yaml:"code" json:"code"`
	All      string      `yaml:"all" json:"all,omitempty"`
	Singular string      `yaml:"singular" json:"singular"`
	Plural   string      `yaml:"plural" json:"plural"`
}

// Descriptions is the pluralisation table keyed by status code.
type Descriptions struct {
	phrases map[status.Code]Phrase
}

type descriptionsFile struct {
	Descriptions []Phrase `yaml:"descriptions"`
}

var (
	defaultDescriptions     *Descriptions
	defaultDescriptionsOnce sync.Once
)

// DefaultDescriptions returns the built-in English table.
func DefaultDescriptions() *Descriptions {
	defaultDescriptionsOnce.Do(func() {
		d, err := ParseDescriptions(defaultDescriptionsYAML)
		if err != nil {
			panic("shield: invalid embedded descriptions: " + err.Error())
		}
		defaultDescriptions = d
	})
	return defaultDescriptions
}

// ParseDescriptions reads a YAML wording table.
func ParseDescriptions(data []byte) (*Descriptions, error) {
	var f descriptionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse descriptions: %w", err)
	}
	d := &Descriptions{phrases: make(map[status.Code]Phrase, len(f.Descriptions))}
	for i, p := range f.Descriptions {
		if p.Code == "" {
			return nil, fmt.Errorf("parse descriptions: entry %d has no code", i)
		}
		if p.Singular == "" || p.Plural == "" {
			return nil, fmt.Errorf("parse descriptions: %s needs singular and plural wording", p.Code)
		}
		d.phrases[p.Code] = p
	}
	return d, nil
}

// LoadDescriptions reads a wording table from path. An empty path returns
// the built-in table.
func LoadDescriptions(path string) (*Descriptions, error) {
	if path == "" {
		return DefaultDescriptions(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read descriptions: %w", err)
	}
	return ParseDescriptions(data)
}

// Phrase returns the wording for code.
func (d *Descriptions) Phrase(code status.Code) (Phrase, bool) {
	p, ok := d.phrases[code]
	return p, ok
}

// Phrases returns the whole table ordered by code.
func (d *Descriptions) Phrases() []Phrase {
	out := make([]Phrase, 0, len(d.phrases))
	for _, p := range d.phrases {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Describe builds the description of a consolidated result covering count
// of total addresses. Codes without wording reuse fallback verbatim.
func (d *Descriptions) Describe(code status.Code, count, total int, fallback string) string {
	p, ok := d.phrases[code]
	if !ok {
		return fallback
	}
	if count == total && total > 1 && p.All != "" {
		return p.All
	}
	if count == 1 {
		return fmt.Sprintf("1 address %s", p.Singular)
	}
	return fmt.Sprintf("%d addresses %s", count, p.Plural)
}
