package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mfathy/safaribooks/internal/models"
)

// loadTopics reads the topic catalogue: a YAML list of
// {name, expected_count} entries. The on-disk format of this file is the
// one interface this tool leaves to its caller to define; this loader is
// deliberately the simplest thing that could work.
func loadTopics(path string) ([]models.Topic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topics file: %w", err)
	}

	var topics []models.Topic
	if err := yaml.Unmarshal(data, &topics); err != nil {
		return nil, fmt.Errorf("parse topics file: %w", err)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("topics file %s contains no topics", path)
	}
	return topics, nil
}
