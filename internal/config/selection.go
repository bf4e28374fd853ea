package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/brensch/tripparquet/internal/shard"
)

// Selection is the declarative document listing the dataset groups to acquire.
type Selection struct {
	Datasets []Dataset `yaml:"datasets"`
}

// Dataset is one group of the selection document.
type Dataset struct {
	TaxiTypes []string `yaml:"taxi_types"`
	Years     []int    `yaml:"years"`
	Months    []int    `yaml:"months"`
}

// Groups converts the document into selector groups.
func (s Selection) Groups() []shard.Group {
	groups := make([]shard.Group, 0, len(s.Datasets))
	for _, d := range s.Datasets {
		groups = append(groups, shard.Group{
			Categories: d.TaxiTypes,
			Years:      d.Years,
			Months:     d.Months,
		})
	}
	return groups
}

// ParseSelection decodes a selection document.
func ParseSelection(data []byte) (Selection, error) {
	var sel Selection
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return Selection{}, fmt.Errorf("parse selection: %w", err)
	}
	return sel, nil
}

// LoadSelection reads and decodes the selection document at path.
func LoadSelection(path string) (Selection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Selection{}, fmt.Errorf("read selection %s: %w", path, err)
	}
	sel, err := ParseSelection(data)
	if err != nil {
		return Selection{}, fmt.Errorf("%s: %w", path, err)
	}
	return sel, nil
}
