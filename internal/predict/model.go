package predict

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrFeatureLength indicates the supplied feature vector does not match
	// the shape the model was trained on.
	ErrFeatureLength = errors.New("predict: feature vector length mismatch")
	// ErrInvalidArtifact indicates the serialized model failed shape validation.
	ErrInvalidArtifact = errors.New("predict: invalid model artifact")
)

// artifact is the on-disk JSON form of an offline-trained linear classifier:
// one weight row and one intercept per class, scores resolved by arg-max.
type artifact struct {
	FeatureCount int         `json:"feature_count"`
	Classes      []int       `json:"classes"`
	Weights      [][]float64 `json:"weights"`
	Intercepts   []float64   `json:"intercepts"`
}

// Model evaluates a pre-trained linear classifier over fixed-length
// numeric feature vectors. Immutable after Load.
type Model struct {
	featureCount int
	classes      []int
	weights      [][]float64
	intercepts   []float64
}

// Load reads and validates a serialized classifier artifact.
func Load(path string) (*Model, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc artifact
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}

	if doc.FeatureCount <= 0 {
		return nil, fmt.Errorf("%w: feature_count must be positive", ErrInvalidArtifact)
	}
	if len(doc.Classes) == 0 {
		return nil, fmt.Errorf("%w: no classes", ErrInvalidArtifact)
	}
	if len(doc.Weights) != len(doc.Classes) {
		return nil, fmt.Errorf("%w: %d weight rows for %d classes", ErrInvalidArtifact, len(doc.Weights), len(doc.Classes))
	}
	if len(doc.Intercepts) != len(doc.Classes) {
		return nil, fmt.Errorf("%w: %d intercepts for %d classes", ErrInvalidArtifact, len(doc.Intercepts), len(doc.Classes))
	}
	for i, row := range doc.Weights {
		if len(row) != doc.FeatureCount {
			return nil, fmt.Errorf("%w: weight row %d has %d values, want %d", ErrInvalidArtifact, i, len(row), doc.FeatureCount)
		}
	}

	return &Model{
		featureCount: doc.FeatureCount,
		classes:      doc.Classes,
		weights:      doc.Weights,
		intercepts:   doc.Intercepts,
	}, nil
}

// FeatureCount returns the feature vector length the model expects.
func (m *Model) FeatureCount() int {
	return m.featureCount
}

// Predict scores the feature vector against every class and returns the
// label with the highest score. The vector length must match FeatureCount.
func (m *Model) Predict(features []float64) (int, error) {
	if len(features) != m.featureCount {
		return 0, fmt.Errorf("%w: got %d features, want %d", ErrFeatureLength, len(features), m.featureCount)
	}

	best := 0
	bestScore := m.score(0, features)
	for c := 1; c < len(m.classes); c++ {
		if score := m.score(c, features); score > bestScore {
			best = c
			bestScore = score
		}
	}
	return m.classes[best], nil
}

func (m *Model) score(class int, features []float64) float64 {
	score := m.intercepts[class]
	for i, value := range features {
		score += m.weights[class][i] * value
	}
	return score
}
