package classify

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

const DefaultInferenceTimeout = 10 * time.Second

var (
	ErrInferenceTimeout     = errors.New("inference call timed out")
	ErrInferenceUnavailable = errors.New("inference backend unavailable")
	ErrInferenceParse       = errors.New("inference response is not parseable JSON")
)

// Request carries one reading plus the device context the tiers need to
// build their analysis.
type Request struct {
	Reading models.Reading
	Device  models.Device
}

// Result is the classifier output. Every classification terminates with a
// well-formed Result; no tier error ever reaches the ingestion path.
type Result struct {
	Anomaly     bool
	Severity    models.Severity
	Explanation string
	Suggestion  string
	Score       float64 // normalized anomaly score in [0,1]
	Tier        string  // which tier produced the decision
}

// Tier is one classification strategy. A non-nil error hands the request to
// the next tier in the chain.
type Tier interface {
	Name() string
	Classify(ctx context.Context, req Request) (Result, error)
}

// HistoryProvider serves recent readings of the same device+sensor pair to
// the statistical tier. Reads may race with in-flight writes for the same
// key; at most one stale feature vector, accepted trade-off.
type HistoryProvider interface {
	RecentValues(deviceID string, sensorType models.SensorType, window time.Duration, limit int) ([]float64, error)
}

// Chain runs tiers in order until one succeeds. The final tier is always
// the deterministic rule tier, which cannot fail, so Classify always
// returns a usable Result.
type Chain struct {
	tiers []Tier
}

func NewChain(tiers ...Tier) *Chain {
	return &Chain{tiers: tiers}
}

func (c *Chain) Classify(ctx context.Context, req Request) Result {
	logger := common.GetLoggerWith(common.LoggerNameClassifier)

	for _, tier := range c.tiers {
		result, err := tier.Classify(ctx, req)
		if err != nil {
			logger.Warn("Classifier tier failed, falling back",
				zap.String("tier", tier.Name()),
				zap.String("device_id", req.Reading.DeviceID),
				zap.Error(err))
			continue
		}
		result.Tier = tier.Name()
		common.MetricClassifications.WithLabelValues(tier.Name()).Inc()
		return result
	}

	// all tiers failed; store the reading as non-anomalous with a marker
	common.MetricClassifications.WithLabelValues("none").Inc()
	return Result{
		Anomaly:     false,
		Severity:    models.SeverityLow,
		Explanation: "Classification unavailable, reading stored without analysis",
		Suggestion:  "Review sensor data manually",
		Tier:        "none",
	}
}
