package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

const (
	historyWindow = time.Hour
	historyLimit  = 100

	// featureCount is the length of the vector extractFeatures builds.
	featureCount = 6
)

// forestNode is one node of an isolation tree. Left/Right of -1 marks a
// leaf; Size is the number of training samples that reached the leaf.
type forestNode struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Size      int     `json:"size"`
}

type forestTree struct {
	Nodes []forestNode `json:"nodes"`
}

// Forest is an isolation-forest dump trained offline and loaded at startup.
// Offset is the outlier decision boundary on the raw score.
type Forest struct {
	Trees      []forestTree `json:"trees"`
	SampleSize int          `json:"sample_size"`
	Offset     float64      `json:"offset"`
}

func LoadForest(path string) (*Forest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	var f Forest
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse model file: %w", err)
	}
	if len(f.Trees) == 0 || f.SampleSize < 2 {
		return nil, fmt.Errorf("model file %s holds no usable trees", path)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("model file %s: %w", path, err)
	}
	return &f, nil
}

// validate checks the tree structure so scoring can walk nodes without
// bounds checks. Children must point forward in the node array, which also
// rules out cycles.
func (f *Forest) validate() error {
	for ti, tree := range f.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, node := range tree.Nodes {
			if node.Left < 0 || node.Right < 0 {
				continue // leaf
			}
			if node.Left >= len(tree.Nodes) || node.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
			if node.Left <= ni || node.Right <= ni {
				return fmt.Errorf("tree %d node %d: child index does not point forward", ti, ni)
			}
			if node.Feature < 0 || node.Feature >= featureCount {
				return fmt.Errorf("tree %d node %d: feature index %d out of range", ti, ni, node.Feature)
			}
		}
	}
	return nil
}

// avgPathLength is the expected isolation path length c(n) for n samples.
func avgPathLength(n int) float64 {
	if n <= 1 {
		return 0
	}
	h := math.Log(float64(n-1)) + 0.5772156649 // harmonic number approximation
	return 2*h - 2*float64(n-1)/float64(n)
}

func (f *Forest) pathLength(tree forestTree, features []float64) float64 {
	depth := 0.0
	idx := 0
	for {
		node := tree.Nodes[idx]
		if node.Left < 0 || node.Right < 0 {
			return depth + avgPathLength(node.Size)
		}
		if node.Feature < len(features) && features[node.Feature] < node.Threshold {
			idx = node.Left
		} else {
			idx = node.Right
		}
		depth++
	}
}

// Score returns the raw anomaly score of a feature vector. More negative
// means more anomalous; the range is roughly [-1, 0].
func (f *Forest) Score(features []float64) float64 {
	var total float64
	for _, tree := range f.Trees {
		total += f.pathLength(tree, features)
	}
	mean := total / float64(len(f.Trees))
	return -math.Pow(2, -mean/avgPathLength(f.SampleSize))
}

// IsOutlier applies the model's decision boundary to a raw score.
func (f *Forest) IsOutlier(rawScore float64) bool {
	return rawScore < f.Offset
}

// StatsTier scores a reading against the recent history of the same
// device+sensor pair using the offline-trained forest. It is active when no
// inference backend is configured.
type StatsTier struct {
	forest    *Forest
	history   HistoryProvider
	threshold float64
}

func NewStatsTier(forest *Forest, history HistoryProvider, threshold float64) *StatsTier {
	return &StatsTier{forest: forest, history: history, threshold: threshold}
}

func (st *StatsTier) Name() string {
	return "stats"
}

func (st *StatsTier) Classify(_ context.Context, req Request) (Result, error) {
	logger := common.GetLoggerWith(common.LoggerNameClassifier)

	values, err := st.history.RecentValues(
		req.Reading.DeviceID, req.Reading.SensorType, historyWindow, historyLimit)
	if err != nil {
		return Result{}, fmt.Errorf("load history: %w", err)
	}

	// no history yet: neutral non-anomaly instead of feature extraction on
	// insufficient data
	if len(values) < 1 {
		return Result{
			Anomaly:     false,
			Severity:    models.SeverityLow,
			Explanation: "Not enough history for statistical analysis, reading treated as normal",
			Suggestion:  "No action required. Continue routine monitoring.",
			Score:       0.0,
		}, nil
	}

	features := extractFeatures(req.Reading.Value, values)

	raw := st.forest.Score(features)
	normalized := common.Clamp(0.5-raw, 0, 1)
	anomaly := st.forest.IsOutlier(raw) || normalized > st.threshold

	logger.Debug("Statistical scoring complete",
		zap.String("device_id", req.Reading.DeviceID),
		zap.Float64("raw_score", raw),
		zap.Float64("normalized", normalized),
		zap.Bool("anomaly", anomaly))

	if !anomaly {
		return Result{
			Anomaly:     false,
			Severity:    models.SeverityLow,
			Explanation: fmt.Sprintf("%s value %g is consistent with recent readings.", req.Reading.SensorType, req.Reading.Value),
			Suggestion:  "No action required. Continue routine monitoring.",
			Score:       normalized,
		}, nil
	}

	return Result{
		Anomaly:     true,
		Severity:    severityFromScore(normalized),
		Explanation: fmt.Sprintf("%s value %g deviates from the recent pattern of this device (anomaly score %.2f).", req.Reading.SensorType, req.Reading.Value, normalized),
		Suggestion:  "Inspect the device and compare against co-located sensors.",
		Score:       normalized,
	}, nil
}

// extractFeatures builds the six-feature vector: current value, mean, std,
// max, min of the history, and deviation of current from the mean.
func extractFeatures(current float64, values []float64) []float64 {
	n := float64(len(values))
	sum := common.Reducer(values, func(acc, v float64) float64 { return acc + v }, 0.0)
	mean := sum / n

	var variance, maxV, minV float64
	maxV, minV = values[0], values[0]
	for _, v := range values {
		variance += (v - mean) * (v - mean)
		if v > maxV {
			maxV = v
		}
		if v < minV {
			minV = v
		}
	}
	std := math.Sqrt(variance / n)

	return []float64{current, mean, std, maxV, minV, current - mean}
}

func severityFromScore(score float64) models.Severity {
	switch {
	case score > 0.9:
		return models.SeverityCritical
	case score > 0.8:
		return models.SeverityHigh
	case score > 0.65:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}
