package detection

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/reviewguard/reviewguard/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeArtifacts(t *testing.T, dir string, vec vectorizerArtifact, model modelArtifact) (modelPath, vectorizerPath string) {
	t.Helper()

	vectorizerPath = filepath.Join(dir, "vectorizer.json")
	vecData, err := json.Marshal(vec)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(vectorizerPath, vecData, 0o644))

	modelPath = filepath.Join(dir, "model.json")
	modelData, err := json.Marshal(model)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(modelPath, modelData, 0o644))

	return modelPath, vectorizerPath
}

func testArtifacts() (vectorizerArtifact, modelArtifact) {
	vec := vectorizerArtifact{
		Vocabulary: map[string]int{"buy": 0, "now": 1, "great": 2, "quality": 3},
		IDF:        []float64{2.0, 2.0, 1.0, 1.0},
	}
	// Strong positive weight on promotional terms, negative on organic ones
	model := modelArtifact{
		Coefficients: []float64{4.0, 4.0, -2.0, -2.0},
		Intercept:    -1.0,
	}
	return vec, model
}

func TestLoadClassifierFromArtifacts(t *testing.T) {
	vec, model := testArtifacts()
	modelPath, vectorizerPath := writeArtifacts(t, t.TempDir(), vec, model)

	classifier := LoadClassifier(&config.ClassifierConfig{
		ModelPath:      modelPath,
		VectorizerPath: vectorizerPath,
		Threshold:      0.5,
	})

	require.False(t, classifier.Degraded())

	spammy := classifier.Predict("buy now buy now")
	assert.True(t, spammy.IsFake)
	assert.Greater(t, spammy.Confidence, 0.5)

	organic := classifier.Predict("great quality")
	assert.False(t, organic.IsFake)
	assert.Less(t, organic.Confidence, 0.5)
}

func TestClassifierDegradedOnMissingArtifacts(t *testing.T) {
	classifier := LoadClassifier(&config.ClassifierConfig{
		ModelPath:      "/nonexistent/model.json",
		VectorizerPath: "/nonexistent/vectorizer.json",
		Threshold:      0.5,
	})

	assert.True(t, classifier.Degraded())

	prediction := classifier.Predict("buy now buy now")
	assert.False(t, prediction.IsFake)
	assert.Equal(t, 0.0, prediction.Confidence)
}

func TestClassifierDegradedOnCorruptArtifacts(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	vectorizerPath := filepath.Join(dir, "vectorizer.json")
	require.NoError(t, os.WriteFile(modelPath, []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(vectorizerPath, []byte("{not json"), 0o644))

	classifier := LoadClassifier(&config.ClassifierConfig{
		ModelPath:      modelPath,
		VectorizerPath: vectorizerPath,
		Threshold:      0.5,
	})

	assert.True(t, classifier.Degraded())
}

func TestClassifierRejectsMismatchedArtifacts(t *testing.T) {
	vec, model := testArtifacts()
	model.Coefficients = model.Coefficients[:2] // wrong length
	modelPath, vectorizerPath := writeArtifacts(t, t.TempDir(), vec, model)

	classifier := LoadClassifier(&config.ClassifierConfig{
		ModelPath:      modelPath,
		VectorizerPath: vectorizerPath,
		Threshold:      0.5,
	})

	assert.True(t, classifier.Degraded())
}

func TestPredictUnknownVocabularyFallsBackToIntercept(t *testing.T) {
	vec, model := testArtifacts()
	classifier, err := newClassifier(vec, model, 0.5)
	require.NoError(t, err)

	prediction := classifier.Predict("completely unseen words")
	// Intercept of -1 puts the base probability under the threshold
	assert.False(t, prediction.IsFake)
	assert.Greater(t, prediction.Confidence, 0.0)
	assert.Less(t, prediction.Confidence, 0.5)
}

func TestPredictIsDeterministic(t *testing.T) {
	vec, model := testArtifacts()
	classifier, err := newClassifier(vec, model, 0.5)
	require.NoError(t, err)

	first := classifier.Predict("buy now great quality")
	second := classifier.Predict("buy now great quality")
	assert.Equal(t, first, second)
}
