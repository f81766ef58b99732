package main

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/anime-shed/roi-gridview-go/pkg/models"
)

// queryFile is the result of an executed query, saved as YAML
type queryFile struct {
	Items          []models.Item `yaml:"items"`
	ReferenceLabel string        `yaml:"reference_label,omitempty"`
	ReferenceIDs   []uuid.UUID   `yaml:"reference_ids,omitempty"`
}

func readQueryFile(path string) (*queryFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	q, err := decodeQuery(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return q, nil
}

func decodeQuery(r io.Reader) (*queryFile, error) {
	var q queryFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&q); err != nil {
		return nil, err
	}
	if len(q.Items) == 0 {
		return nil, fmt.Errorf("query has no items")
	}
	for i := range q.Items {
		if q.Items[i].ID == uuid.Nil {
			// Records without an association id still get a stable identity within the run
			q.Items[i].ID = uuid.New()
		}
	}
	return &q, nil
}

func (q *queryFile) items() []*models.Item {
	items := make([]*models.Item, len(q.Items))
	for i := range q.Items {
		items[i] = &q.Items[i]
	}
	return items
}
