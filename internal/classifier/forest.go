package classifier

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/labreport-analyzer/internal/common"
)

//go:embed model.schema.json
var modelSchemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func modelSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("model.schema.json", bytes.NewReader(modelSchemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile("model.schema.json")
	})
	return schema, schemaErr
}

const leaf = -1

type node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value,omitempty"`
}

type tree struct {
	Nodes []node `json:"nodes"`
}

type forestFile struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	FeatureNames []string `json:"feature_names"`
	Classes      []string `json:"classes"`
	Trees        []tree   `json:"trees"`
}

// Forest is a random forest exported from scikit-learn: every tree votes with its
// leaf class distribution and the label with the highest mean probability wins.
type Forest struct {
	name     string
	version  string
	features []string
	classes  []string
	trees    []tree
	logger   *slog.Logger
}

// LoadForest reads and validates a forest export from disk.
func LoadForest(path string, logger *slog.Logger) (*Forest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", common.ErrModel, path, err)
	}
	f, err := ParseForest(data, logger)
	if err != nil {
		return nil, err
	}
	f.logger.Info("classifier.model.loaded",
		"path", path,
		"name", f.name,
		"version", f.version,
		"features", len(f.features),
		"classes", len(f.classes),
		"trees", len(f.trees),
	)
	return f, nil
}

// ParseForest validates data against the embedded schema and the tree invariants.
func ParseForest(data []byte, logger *slog.Logger) (*Forest, error) {
	if logger == nil {
		logger = slog.Default()
	}
	sch, err := modelSchema()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModel, err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode model: %w", common.ErrModel, err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: model does not match schema: %w", common.ErrModel, err)
	}

	var ff forestFile
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("%w: decode model: %w", common.ErrModel, err)
	}
	f := &Forest{
		name:     ff.Name,
		version:  ff.Version,
		features: ff.FeatureNames,
		classes:  ff.Classes,
		trees:    ff.Trees,
		logger:   logger,
	}
	if err := f.check(); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrModel, err)
	}
	return f, nil
}

// check enforces what the schema cannot: index bounds, distribution widths and
// children that always follow their parent, which rules out cycles.
func (f *Forest) check() error {
	seen := make(map[string]struct{}, len(f.features))
	for _, name := range f.features {
		if _, dup := seen[name]; dup {
			return fmt.Errorf("duplicate feature %q", name)
		}
		seen[name] = struct{}{}
	}
	for ti, t := range f.trees {
		for ni, n := range t.Nodes {
			if n.Left == leaf || n.Right == leaf {
				if n.Left != n.Right {
					return fmt.Errorf("tree %d node %d: half leaf", ti, ni)
				}
				if len(n.Value) != len(f.classes) {
					return fmt.Errorf("tree %d node %d: %d class weights, want %d", ti, ni, len(n.Value), len(f.classes))
				}
				if sum(n.Value) <= 0 {
					return fmt.Errorf("tree %d node %d: empty leaf", ti, ni)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= len(f.features) {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			for _, c := range []int{n.Left, n.Right} {
				if c <= ni || c >= len(t.Nodes) {
					return fmt.Errorf("tree %d node %d: child %d out of order", ti, ni, c)
				}
			}
		}
	}
	return nil
}

func (f *Forest) Name() string    { return f.name }
func (f *Forest) Version() string { return f.version }

// FeatureNames returns a copy of the model's field order.
func (f *Forest) FeatureNames() []string {
	return append([]string(nil), f.features...)
}

// Classes returns a copy of the decoded class labels.
func (f *Forest) Classes() []string {
	return append([]string(nil), f.classes...)
}

// PredictProba returns the mean class distribution over all trees.
func (f *Forest) PredictProba(ctx context.Context, x []float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(x) != len(f.features) {
		return nil, fmt.Errorf("%w: %w: got %d values, want %d", common.ErrInvalidInput, ErrFeatureCount, len(x), len(f.features))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: %s is not finite", common.ErrInvalidInput, f.features[i])
		}
	}

	proba := make([]float64, len(f.classes))
	for _, t := range f.trees {
		n := t.Nodes[0]
		i := 0
		for n.Left != leaf {
			// sklearn compares float32 inputs against the split threshold
			if float64(float32(x[n.Feature])) <= n.Threshold {
				i = n.Left
			} else {
				i = n.Right
			}
			n = t.Nodes[i]
		}
		total := sum(n.Value)
		for c, w := range n.Value {
			proba[c] += w / total
		}
	}
	for c := range proba {
		proba[c] /= float64(len(f.trees))
	}
	return proba, nil
}

// Predict returns the label with the highest mean probability; ties go to the
// earlier class.
func (f *Forest) Predict(ctx context.Context, x []float64) (string, error) {
	proba, err := f.PredictProba(ctx, x)
	if err != nil {
		return "", err
	}
	best := 0
	for c := 1; c < len(proba); c++ {
		if proba[c] > proba[best] {
			best = c
		}
	}
	f.logger.Debug("classifier.predict", "label", f.classes[best], "probability", proba[best])
	return f.classes[best], nil
}

func sum(v []float64) float64 {
	var s float64
	for _, w := range v {
		s += w
	}
	return s
}
