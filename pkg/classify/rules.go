package classify

import (
	"context"
	"fmt"
	"strings"

	"liyu1981.xyz/iot-shield-service/pkg/models"
)

// thresholdBands holds the four severity cut points plus a minimum bound for
// one sensor type. A value qualifies for the highest band it exceeds; values
// inside all bands are normal.
type thresholdBands struct {
	Min      float64
	Low      float64
	Medium   float64
	High     float64
	Critical float64
}

var thresholdTable = map[models.SensorType]thresholdBands{
	models.SensorTypeTemperature:    {Min: 0, Low: 32, Medium: 38, High: 45, Critical: 50},
	models.SensorTypeHumidity:       {Min: 15, Low: 65, Medium: 75, High: 85, Critical: 90},
	models.SensorTypeGas:            {Min: 0, Low: 0.36, Medium: 0.51, High: 0.66, Critical: 0.76},
	models.SensorTypeFlame:          {Min: 0, Low: 0.16, Medium: 0.36, High: 0.56, Critical: 0.71},
	models.SensorTypeMotion:         {Min: 0, Low: 0.4, Medium: 0.6, High: 0.75, Critical: 0.90},
	models.SensorTypeLight:          {Min: 20, Low: 650, Medium: 800, High: 900, Critical: 950},
	models.SensorTypeCPUTemperature: {Min: 0, Low: 70, Medium: 80, High: 90, Critical: 95},
	models.SensorTypeMemoryUsage:    {Min: 0, Low: 75, Medium: 85, High: 92, Critical: 95},
	models.SensorTypeDiskUsage:      {Min: 0, Low: 75, Medium: 85, High: 92, Critical: 95},
}

var defaultBands = thresholdBands{Min: 0, Low: 70, Medium: 80, High: 90, Critical: 95}

// RuleTier is the deterministic threshold fallback. It never fails, so it
// terminates every classification chain.
type RuleTier struct{}

func NewRuleTier() *RuleTier {
	return &RuleTier{}
}

func (rt *RuleTier) Name() string {
	return "rules"
}

func (rt *RuleTier) Classify(_ context.Context, req Request) (Result, error) {
	sensorType := req.Reading.SensorType
	value := req.Reading.Value
	lower := strings.ToLower(string(sensorType))

	bands, ok := thresholdTable[sensorType]
	if !ok {
		bands = defaultBands
	}

	// highest severity first, so a value gets the single highest band it
	// qualifies for
	switch {
	case value > bands.Critical:
		return Result{
			Anomaly:     true,
			Severity:    models.SeverityCritical,
			Explanation: fmt.Sprintf("%s value %g exceeds critical threshold %g. Extreme deviation detected, immediate attention required.", sensorType, value, bands.Critical),
			Suggestion:  fmt.Sprintf("Immediately check %s sensor and investigate cause. Take safety precautions.", lower),
			Score:       1.0,
		}, nil
	case value > bands.High:
		return Result{
			Anomaly:     true,
			Severity:    models.SeverityHigh,
			Explanation: fmt.Sprintf("%s value %g significantly exceeds high threshold %g. Requires investigation.", sensorType, value, bands.High),
			Suggestion:  fmt.Sprintf("Investigate %s readings and prepare for intervention if trend continues.", lower),
			Score:       0.85,
		}, nil
	case value > bands.Medium:
		return Result{
			Anomaly:     true,
			Severity:    models.SeverityMedium,
			Explanation: fmt.Sprintf("%s value %g exceeds medium threshold %g. Notable deviation from normal.", sensorType, value, bands.Medium),
			Suggestion:  fmt.Sprintf("Monitor %s closely. Check if pattern persists over next readings.", lower),
			Score:       0.7,
		}, nil
	case value > bands.Low:
		return Result{
			Anomaly:     true,
			Severity:    models.SeverityLow,
			Explanation: fmt.Sprintf("%s value %g slightly exceeds normal range. Minor deviation detected.", sensorType, value),
			Suggestion:  fmt.Sprintf("Keep monitoring %s. No immediate action needed unless trend worsens.", lower),
			Score:       0.55,
		}, nil
	case value < bands.Min:
		return Result{
			Anomaly:     true,
			Severity:    models.SeverityLow,
			Explanation: fmt.Sprintf("%s value %g is below minimum bound %g. Possible sensor fault.", sensorType, value, bands.Min),
			Suggestion:  fmt.Sprintf("Inspect the %s sensor for wiring or calibration issues.", lower),
			Score:       0.55,
		}, nil
	default:
		return Result{
			Anomaly:     false,
			Severity:    models.SeverityLow,
			Explanation: fmt.Sprintf("%s value %g is within normal operating range.", sensorType, value),
			Suggestion:  "No action required. Continue routine monitoring.",
			Score:       0.0,
		}, nil
	}
}
