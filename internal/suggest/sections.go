package suggest

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Section is a well-known top-level site area that suggestions can point to.
type Section struct {
	Name     string   `yaml:"name"`
	Path     string   `yaml:"path"`
	Keywords []string `yaml:"keywords"`
}

// DefaultSections returns the built-in section table used when no config
// file is provided.
func DefaultSections() []Section {
	return []Section{
		{Name: "Products", Path: "/products", Keywords: []string{"product", "products", "item", "items", "shop", "store", "catalog", "buy"}},
		{Name: "Categories", Path: "/categories", Keywords: []string{"category", "categories", "collection", "collections"}},
		{Name: "Blog", Path: "/blog", Keywords: []string{"blog", "news", "article", "articles", "post", "posts"}},
		{Name: "Search", Path: "/search", Keywords: []string{"search", "find", "query"}},
		{Name: "Contact", Path: "/contact", Keywords: []string{"contact", "support", "help", "faq"}},
		{Name: "About", Path: "/about", Keywords: []string{"about", "company", "team"}},
	}
}

type sectionsFile struct {
	Sections []Section `yaml:"sections"`
}

// LoadSections reads a section table from a YAML file.
func LoadSections(path string) ([]Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("suggest: read sections file %s: %w", path, err)
	}
	var f sectionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("suggest: parse sections file %s: %w", path, err)
	}
	if len(f.Sections) == 0 {
		return nil, fmt.Errorf("suggest: sections file %s defines no sections", path)
	}
	for i, s := range f.Sections {
		if s.Path == "" {
			return nil, fmt.Errorf("suggest: sections file %s: section %d has no path", path, i)
		}
	}
	return f.Sections, nil
}
