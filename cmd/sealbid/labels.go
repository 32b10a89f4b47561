package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// loadLabels reads a JSON array of labels.
func loadLabels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("%s: expected a JSON array of labels: %w", path, err)
	}
	if len(labels) == 0 {
		return nil, errors.New(path + ": no labels")
	}
	return labels, nil
}
