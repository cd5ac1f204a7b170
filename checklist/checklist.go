// Package checklist holds the pedagogical observation catalogs, one per
// teaching method.
package checklist

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
	"lesson-observer-go/models"
)

//go:embed templates.yaml
var builtinYAML []byte

// Item is one expected observation
type Item struct {
	ID   string `json:"id" yaml:"id"`
	Text string `json:"text" yaml:"text"`
}

// Section groups the items of one lesson section
type Section struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Items    []Item `json:"items" yaml:"items"`
}

// Template is the ordered catalog evaluated for a teaching method
type Template struct {
	Method   models.Method `json:"method"`
	Sections []Section     `json:"sections"`
}

// FlatItem is an Item annotated with its section category
type FlatItem struct {
	Item
	Category string
}

// Items flattens the template in section order
func (t Template) Items() []FlatItem {
	var out []FlatItem
	for _, s := range t.Sections {
		for _, it := range s.Items {
			out = append(out, FlatItem{Item: it, Category: s.Category})
		}
	}
	return out
}

// IDs lists the item ids in order
func (t Template) IDs() []string {
	items := t.Items()
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

// Validate rejects empty templates and duplicate or blank item ids
func (t Template) Validate() error {
	if len(t.Sections) == 0 {
		return errors.New("checklist template has no sections")
	}
	seen := make(map[string]bool)
	for _, it := range t.Items() {
		if it.ID == "" || it.Text == "" {
			return fmt.Errorf("checklist item in %q has empty id or text", it.Category)
		}
		if seen[it.ID] {
			return fmt.Errorf("duplicate checklist item id %q", it.ID)
		}
		seen[it.ID] = true
	}
	return nil
}

type catalog struct {
	Adults []Section `yaml:"adults"`
	Teens  []Section `yaml:"teens"`
}

var builtin = mustParse(builtinYAML)

func mustParse(data []byte) catalog {
	var c catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		panic(fmt.Sprintf("checklist: invalid embedded catalog: %v", err))
	}
	return c
}

// Builtin returns the built-in template for a method. Teens has its own
// catalog; every other method is evaluated against the adults one.
func Builtin(method models.Method) Template {
	sections := builtin.Adults
	if method == models.MethodTeens {
		sections = builtin.Teens
	}
	copied := make([]Section, len(sections))
	for i, s := range sections {
		copied[i] = Section{ID: s.ID, Category: s.Category, Items: append([]Item(nil), s.Items...)}
	}
	return Template{Method: method, Sections: copied}
}
