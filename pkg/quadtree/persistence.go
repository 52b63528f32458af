package quadtree

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/kass/go-field-surface/pkg/models"
)

// indexData is the serializable form of the index. The tree structure is
// not stored; it is rebuilt on load, which keeps the format independent of
// split thresholds.
type indexData struct {
	Points []models.SurveyPoint
}

// SaveToFile writes all indexed points to a binary file.
func (q *QuadTree) SaveToFile(filename string) error {
	data := indexData{Points: q.All()}

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	encoder := gob.NewEncoder(file)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode index: %w", err)
	}
	return nil
}

// LoadFromFile replaces the index contents with the points stored in the
// given file.
func (q *QuadTree) LoadFromFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data indexData
	decoder := gob.NewDecoder(file)
	if err := decoder.Decode(&data); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	q.Clear()
	for _, p := range data.Points {
		q.Insert(p)
	}
	return nil
}
