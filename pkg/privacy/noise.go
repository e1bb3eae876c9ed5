package privacy

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

type Mechanism string

const (
	MechanismGaussian Mechanism = "gaussian"
	MechanismLaplace  Mechanism = "laplace"
)

// sensitivities bound the effect of a single reading per sensor type.
var sensitivities = map[models.SensorType]float64{
	models.SensorTypeTemperature:    2.0,
	models.SensorTypeHumidity:       5.0,
	models.SensorTypeGas:            0.1,
	models.SensorTypeFlame:          0.05,
	models.SensorTypeMotion:         0.0,
	models.SensorTypeLight:          50.0,
	models.SensorTypeCPUTemperature: 1.0,
	models.SensorTypeMemoryUsage:    1.0,
	models.SensorTypeDiskUsage:      1.0,
}

type bound struct {
	min, max float64
}

var sensorBounds = map[models.SensorType]bound{
	models.SensorTypeTemperature:    {-50, 100},
	models.SensorTypeHumidity:       {0, 100},
	models.SensorTypeGas:            {0, 1},
	models.SensorTypeFlame:          {0, 1},
	models.SensorTypeMotion:         {0, 1},
	models.SensorTypeLight:          {0, 2000},
	models.SensorTypeCPUTemperature: {0, 120},
	models.SensorTypeMemoryUsage:    {0, 100},
	models.SensorTypeDiskUsage:      {0, 100},
}

var defaultBound = bound{0, 1000}

// Injector adds calibrated differential-privacy noise to outbound sensor
// values. Cumulative privacy loss is tracked additively but not enforced;
// budget cutoff is the caller's policy.
type Injector struct {
	epsilon   float64
	delta     float64
	mechanism Mechanism

	// mu serializes rng draws; *rand.Rand is not safe for concurrent use
	// and AddNoise is called from multiple ingestion workers.
	mu      sync.Mutex
	rng     *rand.Rand
	queries atomic.Int64
}

func NewInjector(epsilon, delta float64, mechanism Mechanism) *Injector {
	if mechanism == "" {
		mechanism = MechanismGaussian
	}
	return &Injector{
		epsilon:   epsilon,
		delta:     delta,
		mechanism: mechanism,
		rng:       rand.New(rand.NewSource(rand.Int63())),
	}
}

// AddNoise returns value with mechanism noise scaled by the sensor type's
// sensitivity, clamped to the type's valid range. Clamping happens after
// noise addition so extreme draws are capped rather than dropped. Binary
// MOTION/FLAME values of exactly 0 or 1 are returned untouched.
func (in *Injector) AddNoise(sensorType models.SensorType, value float64) float64 {
	logger := common.GetLoggerWith(common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, "privacy"))

	if (sensorType == models.SensorTypeMotion || sensorType == models.SensorTypeFlame) &&
		(value == 0 || value == 1) {
		return value
	}

	sensitivity, ok := sensitivities[sensorType]
	if !ok {
		sensitivity = 1.0
	}

	var noise float64
	in.mu.Lock()
	switch in.mechanism {
	case MechanismLaplace:
		noise = in.laplace(sensitivity / in.epsilon)
	default:
		sigma := sensitivity * math.Sqrt(2*math.Log(1.25/in.delta)) / in.epsilon
		noise = in.rng.NormFloat64() * sigma
	}
	in.mu.Unlock()

	in.queries.Add(1)

	b, ok := sensorBounds[sensorType]
	if !ok {
		b = defaultBound
	}
	noisy := common.Clamp(value+noise, b.min, b.max)

	logger.Debug("Added privacy noise",
		zap.String("sensor_type", string(sensorType)),
		zap.Float64("value", value),
		zap.Float64("noisy_value", noisy))

	return noisy
}

// laplace draws from Laplace(0, scale) by inverse transform sampling.
// Caller holds in.mu.
func (in *Injector) laplace(scale float64) float64 {
	u := in.rng.Float64() - 0.5
	if u < 0 {
		return scale * math.Log(1+2*u)
	}
	return -scale * math.Log(1-2*u)
}

// TotalEpsilon reports cumulative privacy loss across all queries so far,
// by the additive composition theorem.
func (in *Injector) TotalEpsilon() float64 {
	return float64(in.queries.Load()) * in.epsilon
}

func (in *Injector) Epsilon() float64 {
	return in.epsilon
}

func (in *Injector) Delta() float64 {
	return in.delta
}
