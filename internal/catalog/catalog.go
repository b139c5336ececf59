// Package catalog holds the modules and topics of the presentation. The data
// is embedded at build time and never changes at runtime.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var embedded []byte

type Topic struct {
	ID       string   `yaml:"id" json:"id"`
	ModuleID string   `yaml:"-" json:"moduleId"`
	Title    string   `yaml:"title" json:"title"`
	Duration int      `yaml:"duration" json:"duration"`
	Order    int      `yaml:"order" json:"order"`
	Tags     []string `yaml:"tags" json:"tags"`
	Related  []string `yaml:"related" json:"relatedTopics"`
}

type Module struct {
	ID          string  `yaml:"id" json:"id"`
	Title       string  `yaml:"title" json:"title"`
	Description string  `yaml:"description" json:"description"`
	Duration    int     `yaml:"duration" json:"duration"`
	Order       int     `yaml:"order" json:"order"`
	Icon        string  `yaml:"icon" json:"icon,omitempty"`
	Color       string  `yaml:"color" json:"color,omitempty"`
	Topics      []Topic `yaml:"topics" json:"topics"`
}

type Catalog struct {
	modules []Module
	byTopic map[string]int
}

// Load parses the embedded catalog.
func Load() (*Catalog, error) {
	return Parse(embedded)
}

// Parse decodes and validates a catalog document. Modules and topics are
// sorted by their order field.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Modules []Module `yaml:"modules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	sort.SliceStable(doc.Modules, func(i, j int) bool { return doc.Modules[i].Order < doc.Modules[j].Order })
	c := &Catalog{modules: doc.Modules, byTopic: make(map[string]int)}
	for mi := range c.modules {
		m := &c.modules[mi]
		sort.SliceStable(m.Topics, func(i, j int) bool { return m.Topics[i].Order < m.Topics[j].Order })
		for ti := range m.Topics {
			m.Topics[ti].ModuleID = m.ID
		}
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Catalog) validate() error {
	var result *multierror.Error
	modules := make(map[string]bool, len(c.modules))
	for mi, m := range c.modules {
		if m.ID == "" {
			result = multierror.Append(result, fmt.Errorf("module %d has no id", mi))
			continue
		}
		if modules[m.ID] {
			result = multierror.Append(result, fmt.Errorf("duplicate module %q", m.ID))
		}
		modules[m.ID] = true
		for _, t := range m.Topics {
			if t.ID == "" {
				result = multierror.Append(result, fmt.Errorf("module %q has a topic without id", m.ID))
				continue
			}
			if _, dup := c.byTopic[t.ID]; dup {
				result = multierror.Append(result, fmt.Errorf("duplicate topic %q", t.ID))
				continue
			}
			c.byTopic[t.ID] = mi
		}
	}
	for _, m := range c.modules {
		for _, t := range m.Topics {
			for _, rel := range t.Related {
				if _, ok := c.byTopic[rel]; !ok {
					result = multierror.Append(result, fmt.Errorf("topic %q relates to unknown topic %q", t.ID, rel))
				}
			}
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}
	return nil
}

// Modules returns the modules in presentation order.
func (c *Catalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

func (c *Catalog) Module(id string) (Module, bool) {
	for _, m := range c.modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

func (c *Catalog) Topics(moduleID string) []Topic {
	m, ok := c.Module(moduleID)
	if !ok {
		return nil
	}
	out := make([]Topic, len(m.Topics))
	copy(out, m.Topics)
	return out
}

// Topic looks up a topic and the module that contains it.
func (c *Catalog) Topic(id string) (Topic, Module, bool) {
	mi, ok := c.byTopic[id]
	if !ok {
		return Topic{}, Module{}, false
	}
	m := c.modules[mi]
	for _, t := range m.Topics {
		if t.ID == id {
			return t, m, true
		}
	}
	return Topic{}, Module{}, false
}

func (c *Catalog) HasTopic(id string) bool {
	_, ok := c.byTopic[id]
	return ok
}

// AllTopics returns every topic in presentation order.
func (c *Catalog) AllTopics() []Topic {
	var out []Topic
	for _, m := range c.modules {
		out = append(out, m.Topics...)
	}
	return out
}

// NextModule returns the module after id, if any.
func (c *Catalog) NextModule(id string) (Module, bool) {
	for i, m := range c.modules {
		if m.ID == id && i+1 < len(c.modules) {
			return c.modules[i+1], true
		}
	}
	return Module{}, false
}

func (c *Catalog) PreviousModule(id string) (Module, bool) {
	for i, m := range c.modules {
		if m.ID == id && i > 0 {
			return c.modules[i-1], true
		}
	}
	return Module{}, false
}
