package corpus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/storyfind/internal/models"
)

// yamlCatalogue accepts either a bare list of records or {stories: [...]}.
type yamlCatalogue struct {
	Stories []map[string]any `yaml:"stories"`
}

func loadYAML(path string, opts Options) ([]*models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}
	var rows []map[string]any
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
		err = root.Decode(&rows)
	} else {
		var cat yamlCatalogue
		err = root.Decode(&cat)
		rows = cat.Stories
	}
	if err != nil {
		return nil, fmt.Errorf("parse corpus: %w", err)
	}

	docs := make([]*models.Document, 0, len(rows))
	for i, row := range rows {
		for k, v := range row {
			if n, ok := v.(int); ok {
				row[k] = int64(n)
			}
		}
		doc, err := toDocument(row, opts.textField(), i+1)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
