package notify

import (
	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/common"
)

// Context is the structured alert payload handed to a notification sink.
type Context struct {
	DeviceID    string  `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	Location    string  `json:"location"`
	SensorType  string  `json:"sensor_type"`
	Value       float64 `json:"value"`
	Severity    string  `json:"severity"`
	Explanation string  `json:"explanation"`
	Suggestion  string  `json:"suggestion"`
}

// Sink delivers an alert notification. Delivery failure is log-only for
// callers; it never propagates into the ingestion path.
type Sink interface {
	Notify(alertCtx Context) error
}

// LogSink is the default sink: it records the notification in the service
// log. Real delivery channels (email, SMS, webhooks) plug in behind the
// same interface.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Notify(alertCtx Context) error {
	logger := common.GetLoggerWith(common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryNotification))

	logger.Info("Alert notification",
		zap.String("device_id", alertCtx.DeviceID),
		zap.String("location", alertCtx.Location),
		zap.String("sensor_type", alertCtx.SensorType),
		zap.Float64("value", alertCtx.Value),
		zap.String("severity", alertCtx.Severity),
		zap.String("explanation", alertCtx.Explanation),
		zap.String("suggestion", alertCtx.Suggestion))

	return nil
}
