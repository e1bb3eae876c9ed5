package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

// Backend is one language-model inference service: prompt in, completion
// out, bounded by the caller's context. Remote- and locally-hosted services
// both satisfy it.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string) (string, error)
}

// LLMTier wraps a Backend as a classifier tier. Calls are bounded by a
// fixed timeout; a late completion arriving after the deadline is discarded
// rather than applied, so it can never overwrite a fallback result.
type LLMTier struct {
	backend Backend
	timeout time.Duration
}

func NewLLMTier(backend Backend, timeout time.Duration) *LLMTier {
	if timeout <= 0 {
		timeout = DefaultInferenceTimeout
	}
	return &LLMTier{backend: backend, timeout: timeout}
}

func (lt *LLMTier) Name() string {
	return lt.backend.Name()
}

type completion struct {
	text string
	err  error
}

func (lt *LLMTier) Classify(ctx context.Context, req Request) (Result, error) {
	logger := common.GetLoggerWith(common.LoggerNameClassifier,
		zap.String("backend", lt.backend.Name()))

	cctx, cancel := context.WithTimeout(ctx, lt.timeout)
	defer cancel()

	prompt := buildPrompt(req)

	// buffered so an abandoned inference call can still deliver and exit;
	// its late result is simply never read
	ch := make(chan completion, 1)
	go func() {
		text, err := lt.backend.Complete(cctx, prompt)
		ch <- completion{text: text, err: err}
	}()

	select {
	case <-cctx.Done():
		logger.Warn("Inference call timed out", zap.Duration("timeout", lt.timeout))
		return Result{}, ErrInferenceTimeout
	case c := <-ch:
		if c.err != nil {
			return Result{}, fmt.Errorf("%w: %v", ErrInferenceUnavailable, c.err)
		}
		result, err := parseModelResponse(c.text)
		if err != nil {
			logger.Warn("Model response rejected", zap.Error(err))
			return Result{}, err
		}
		return result, nil
	}
}

// normalRanges is the per-sensor reference table included in every prompt.
var normalRanges = map[models.SensorType]string{
	models.SensorTypeTemperature:    "Normal: 18-28°C, Low Alert: 28-35°C or 10-18°C, Medium Alert: 35-42°C or 5-10°C, High Alert: 42-50°C or 0-5°C, Critical: >50°C or <0°C",
	models.SensorTypeHumidity:       "Normal: 30-60%, Low Alert: 60-70% or 20-30%, Medium Alert: 70-80% or 15-20%, High Alert: 80-90% or 10-15%, Critical: >90% or <10%",
	models.SensorTypeGas:            "Normal: 0-0.35 ppm, Low Alert: 0.36-0.50 ppm, Medium Alert: 0.51-0.65 ppm, High Alert: 0.66-0.75 ppm, Critical: >0.76 ppm (dangerous leak)",
	models.SensorTypeFlame:          "Normal: 0-0.15, Low Alert: 0.16-0.35, Medium Alert: 0.36-0.55, High Alert: 0.56-0.70, Critical: >0.71 (fire detected)",
	models.SensorTypeMotion:         "Normal: 0-0.4 (low activity), Low Alert: 0.4-0.6 (moderate activity), Medium Alert: 0.6-0.75 (high activity), High Alert: 0.75-0.90 (unusual), Critical: >0.90 (suspicious)",
	models.SensorTypeLight:          "Normal: 100-600 lux (indoor), Low Alert: 600-800 lux, Medium Alert: 800-900 lux or <50 lux, High Alert: >900 lux or <20 lux",
	models.SensorTypeCPUTemperature: "Normal: 30-65°C, Low Alert: 65-75°C, Medium Alert: 75-85°C, High Alert: 85-95°C, Critical: >95°C",
	models.SensorTypeMemoryUsage:    "Normal: 0-70%, Low Alert: 70-80%, Medium Alert: 80-90%, High Alert: 90-95%, Critical: >95%",
	models.SensorTypeDiskUsage:      "Normal: 0-70%, Low Alert: 70-80%, Medium Alert: 80-90%, High Alert: 90-95%, Critical: >95%",
}

func buildPrompt(req Request) string {
	ranges, ok := normalRanges[req.Reading.SensorType]
	if !ok {
		ranges = "No predefined range available. Use expert judgment and classify based on reasonable deviation from expected values."
	}

	return fmt.Sprintf(`You are an IoT security and monitoring expert. Analyze the following sensor data and determine if it represents an anomaly or normal behavior.

**Sensor Data:**
- Sensor Type: %s
- Current Value: %g %s
- Device: %s
- Location: %s
- Timestamp: %s

**Normal Range Context:**
%s

**Severity Classification Guidelines:**
- **LOW**: Minor deviation from normal (5-15%% outside normal range). Informational only, no immediate action needed.
- **MEDIUM**: Moderate deviation (15-30%% outside normal range). Monitor closely, may need attention soon.
- **HIGH**: Significant deviation (30-50%% outside normal range) or approaching danger threshold. Requires investigation.
- **CRITICAL**: Extreme deviation (>50%% outside normal range) or exceeds safety threshold. Immediate action required, potential danger.

**Examples:**
- Temperature 32°C (normal: 20-28°C) → MEDIUM (slightly warm, monitor)
- Temperature 38°C (normal: 20-28°C) → HIGH (uncomfortably hot, investigate)
- Temperature 48°C (normal: 20-28°C) → CRITICAL (dangerous heat, immediate action)
- Humidity 65%% (normal: 30-60%%) → LOW (slightly high, informational)
- Gas 0.35 ppm (normal: 0-0.3) → MEDIUM (elevated, monitor for leak)
- Gas 0.75 ppm (critical: >0.7) → CRITICAL (dangerous leak, evacuate)

**Task:**
Determine if this sensor reading is normal or anomalous. Consider:
1. Is the value within expected range for this sensor type?
2. How far is it from the normal range (percentage deviation)?
3. Does it pose an immediate safety risk?
4. Use LOW/MEDIUM for minor deviations, reserve HIGH/CRITICAL for genuine concerns.

**Required Response Format (JSON only, no markdown):**
{"anomaly": true or false, "explanation": "Clear explanation of why this is or isn't an anomaly, including deviation percentage if relevant (2-3 sentences)", "severity": "LOW or MEDIUM or HIGH or CRITICAL", "suggestion": "Specific action recommendation appropriate to severity level (1-2 sentences)"}

Respond ONLY with valid JSON. No additional text or formatting.`,
		req.Reading.SensorType,
		req.Reading.Value,
		req.Reading.Unit,
		req.Device.Name,
		req.Device.Location,
		req.Reading.Timestamp.Format(time.RFC3339),
		ranges,
	)
}

// parseModelResponse parses the raw textual model output into a Result.
// Markdown code fences are stripped first; missing fields are backfilled
// with safe defaults. Output that is not JSON after fence-stripping is
// rejected, which sends the request to the next tier.
func parseModelResponse(text string) (Result, error) {
	cleaned := stripCodeFences(text)

	var parsed struct {
		Anomaly     any    `json:"anomaly"`
		Explanation string `json:"explanation"`
		Severity    string `json:"severity"`
		Suggestion  string `json:"suggestion"`
	}
	if err := json.Unmarshal([]byte(cleaned), &parsed); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInferenceParse, err)
	}

	result := Result{
		Anomaly:     false,
		Severity:    models.SeverityLow,
		Explanation: "Analysis incomplete",
		Suggestion:  "Review sensor data manually",
	}

	switch v := parsed.Anomaly.(type) {
	case bool:
		result.Anomaly = v
	case string:
		lower := strings.ToLower(v)
		result.Anomaly = lower == "true" || lower == "1" || lower == "yes"
	}

	if sev := models.Severity(strings.ToUpper(parsed.Severity)); sev.Valid() {
		result.Severity = sev
	}
	if parsed.Explanation != "" {
		result.Explanation = parsed.Explanation
	}
	if parsed.Suggestion != "" {
		result.Suggestion = parsed.Suggestion
	}
	if result.Anomaly {
		result.Score = 0.5 + 0.5*float64(result.Severity.Rank())/3
	}

	return result, nil
}

// stripCodeFences unwraps ```json ... ``` style blocks and trims the model
// output down to the outermost JSON object when one is present.
func stripCodeFences(text string) string {
	cleaned := strings.TrimSpace(text)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		if len(lines) > 2 {
			cleaned = strings.Join(lines[1:len(lines)-1], "\n")
		}
	}

	if start := strings.Index(cleaned, "{"); start >= 0 {
		if end := strings.LastIndex(cleaned, "}"); end > start {
			cleaned = cleaned[start : end+1]
		}
	}

	return cleaned
}
