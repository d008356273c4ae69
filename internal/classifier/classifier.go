// Package classifier predicts a severity label from a complete feature vector.
package classifier

import (
	"context"
	"errors"
)

// ErrFeatureCount is returned when a vector's length differs from the model's feature list.
var ErrFeatureCount = errors.New("feature vector length mismatch")

// Classifier is the downstream consumer of extracted vectors. FeatureNames is the
// field order a vector passed to Predict must follow.
type Classifier interface {
	FeatureNames() []string
	Predict(ctx context.Context, x []float64) (string, error)
}
