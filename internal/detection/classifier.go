package detection

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/reviewguard/reviewguard/pkg/config"
	"github.com/reviewguard/reviewguard/pkg/logger"
	"go.uber.org/zap"
)

// Prediction is the classifier output for one review text
type Prediction struct {
	IsFake     bool    `json:"is_fake"`
	Confidence float64 `json:"confidence"`
}

// vectorizerArtifact mirrors the exported tf-idf vectorizer: a term
// vocabulary and per-term inverse document frequencies
type vectorizerArtifact struct {
	Vocabulary map[string]int `json:"vocabulary"`
	IDF        []float64      `json:"idf"`
}

// modelArtifact mirrors the exported logistic regression
type modelArtifact struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// Classifier wraps an offline-trained text classifier. The handle is
// built once at startup and never mutated afterwards; callers share it
// freely across goroutines.
//
// When artifacts are absent or unreadable the classifier runs degraded:
// every prediction is the neutral {false, 0.0} and Degraded() reports
// true. It never blocks a submission or a batch run.
type Classifier struct {
	vocabulary map[string]int
	idf        []float64
	coef       []float64
	intercept  float64
	threshold  float64
	degraded   bool
}

// LoadClassifier loads model and vectorizer artifacts. A load failure is
// logged and yields a degraded classifier, not an error.
func LoadClassifier(cfg *config.ClassifierConfig) *Classifier {
	c, err := loadArtifacts(cfg.ModelPath, cfg.VectorizerPath, cfg.Threshold)
	if err != nil {
		logger.Warn("classifier artifacts unavailable, predictions degraded to neutral",
			zap.String("model_path", cfg.ModelPath),
			zap.String("vectorizer_path", cfg.VectorizerPath),
			zap.Error(err))
		return &Classifier{threshold: cfg.Threshold, degraded: true}
	}

	logger.Info("classifier loaded",
		zap.Int("vocabulary_size", len(c.vocabulary)),
		zap.Float64("threshold", c.threshold))
	return c
}

func loadArtifacts(modelPath, vectorizerPath string, threshold float64) (*Classifier, error) {
	var vec vectorizerArtifact
	if err := readJSON(vectorizerPath, &vec); err != nil {
		return nil, fmt.Errorf("load vectorizer: %w", err)
	}

	var model modelArtifact
	if err := readJSON(modelPath, &model); err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	return newClassifier(vec, model, threshold)
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func newClassifier(vec vectorizerArtifact, model modelArtifact, threshold float64) (*Classifier, error) {
	if len(vec.Vocabulary) == 0 {
		return nil, fmt.Errorf("empty vocabulary")
	}
	if len(vec.IDF) != len(vec.Vocabulary) {
		return nil, fmt.Errorf("idf length %d does not match vocabulary size %d", len(vec.IDF), len(vec.Vocabulary))
	}
	if len(model.Coefficients) != len(vec.Vocabulary) {
		return nil, fmt.Errorf("coefficient length %d does not match vocabulary size %d", len(model.Coefficients), len(vec.Vocabulary))
	}
	for term, index := range vec.Vocabulary {
		if index < 0 || index >= len(vec.IDF) {
			return nil, fmt.Errorf("vocabulary term %q maps to out-of-range index %d", term, index)
		}
	}

	return &Classifier{
		vocabulary: vec.Vocabulary,
		idf:        vec.IDF,
		coef:       model.Coefficients,
		intercept:  model.Intercept,
		threshold:  threshold,
	}, nil
}

// Degraded reports whether artifact loading failed and predictions are
// neutral
func (c *Classifier) Degraded() bool {
	return c.degraded
}

// Predict scores normalized review text. Total over its input: any
// string yields a prediction, never an error.
func (c *Classifier) Predict(normalizedText string) Prediction {
	if c.degraded {
		return Prediction{IsFake: false, Confidence: 0.0}
	}

	// Term-frequency vector over the known vocabulary
	tf := make(map[int]float64)
	for _, token := range strings.Fields(normalizedText) {
		if index, ok := c.vocabulary[token]; ok {
			tf[index]++
		}
	}
	if len(tf) == 0 {
		prob := sigmoid(c.intercept)
		return Prediction{IsFake: prob > c.threshold, Confidence: prob}
	}

	// tf-idf with L2 normalization, matching the training-side vectorizer
	var norm float64
	for index, count := range tf {
		weighted := count * c.idf[index]
		tf[index] = weighted
		norm += weighted * weighted
	}
	norm = math.Sqrt(norm)

	z := c.intercept
	for index, weighted := range tf {
		z += c.coef[index] * (weighted / norm)
	}

	prob := sigmoid(z)
	return Prediction{IsFake: prob > c.threshold, Confidence: prob}
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
