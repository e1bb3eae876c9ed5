package iot

import (
	"context"
	"encoding/json"
	"time"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

// SensorMessage is the wire format published by devices on the sensor
// topic. Only device_id, sensor_type and value are required; the rest
// default on first-seen device creation.
type SensorMessage struct {
	DeviceID   string  `json:"device_id"`
	DeviceType string  `json:"device_type"`
	DeviceName string  `json:"device_name"`
	SensorType string  `json:"sensor_type"`
	Value      float64 `json:"value"`
	Unit       string  `json:"unit"`
	Location   string  `json:"location"`
	Timestamp  string  `json:"timestamp"`
}

// Value is absent from the schema: zero is a legitimate reading (MOTION,
// FLAME) and Required would reject it.
var sensorMessageSchema = z.Struct(z.Shape{
	"DeviceID":   z.String().Min(1).Required(),
	"SensorType": z.String().Min(1).Required(),
})

// AckMessage is the wire format devices publish on the control topic to
// report command execution.
type AckMessage struct {
	CommandID string `json:"command_id"`
	Status    string `json:"status"`
	Response  string `json:"response"`
}

var ackMessageSchema = z.Struct(z.Shape{
	"CommandID": z.String().Min(1).Required(),
	"Status":    z.String().Min(1).Required(),
})

func (i *IOT) handleSensorMessage(payload []byte) error {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryIngest),
	)

	plaintext, err := i.Codec.DecryptEnvelope(payload)
	if err != nil {
		logger.Warn("Dropping sensor message, decryption failed", zap.Error(err))
		common.MetricMessagesDropped.WithLabelValues("decrypt").Inc()
		return nil
	}

	var msg SensorMessage
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		logger.Warn("Dropping sensor message, malformed JSON", zap.Error(err))
		common.MetricMessagesDropped.WithLabelValues("parse").Inc()
		return nil
	}

	if err := sensorMessageSchema.Validate(&msg); err != nil {
		logger.Warn("Dropping sensor message, validation failed",
			zap.String("device_id", msg.DeviceID), zap.Reflect("issues", err))
		common.MetricMessagesDropped.WithLabelValues("validate").Inc()
		return nil
	}

	if !i.Limiters.GetLimiter(msg.DeviceID).Allow() {
		logger.Warn("Dropping sensor message, device over rate limit",
			zap.String("device_id", msg.DeviceID))
		common.MetricMessagesDropped.WithLabelValues("rate_limited").Inc()
		return nil
	}

	device, err := i.getOrCreateDevice(&msg)
	if err != nil {
		return err
	}

	reading := models.Reading{
		DeviceID:   device.DeviceID,
		SensorType: models.NormalizeSensorType(msg.SensorType),
		Value:      msg.Value,
		Unit:       msg.Unit,
		Timestamp:  parseTimestamp(msg.Timestamp),
	}

	if err := i.Db.Conn.Create(&reading).Error; err != nil {
		return err
	}
	common.MetricReadingsStored.Inc()

	logger.Info("Stored reading",
		zap.String("device_id", reading.DeviceID),
		zap.String("sensor_type", string(reading.SensorType)),
		zap.Float64("value", reading.Value))

	i.classifyWg.Add(1)
	go i.classifyReading(reading, *device)

	return nil
}

// classifyReading runs the classifier chain off the ingestion path and
// records the verdict. Panics are contained; one bad classification must
// not take down the receive loop's goroutine tree.
func (i *IOT) classifyReading(reading models.Reading, device models.Device) {
	defer i.classifyWg.Done()

	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryIngest),
	)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Classification panicked",
				zap.Uint("reading_id", reading.ID), zap.Any("panic", r))
		}
	}()

	result := i.Classifier.Classify(context.Background(), classify.Request{
		Reading: reading,
		Device:  device,
	})

	updates := map[string]any{
		"is_anomaly":    result.Anomaly,
		"anomaly_score": result.Score,
	}
	if err := i.Db.Conn.Model(&models.Reading{}).Where("id = ?", reading.ID).Updates(updates).Error; err != nil {
		logger.Error("Failed to record classification verdict",
			zap.Uint("reading_id", reading.ID), zap.Error(err))
		return
	}

	if !result.Anomaly {
		return
	}

	reading.IsAnomaly = true
	reading.AnomalyScore = &result.Score
	if _, err := i.Alert.RaiseAlert(&reading, &device, result); err != nil {
		logger.Error("Failed to raise alert",
			zap.Uint("reading_id", reading.ID), zap.Error(err))
	}
}

func (i *IOT) getOrCreateDevice(msg *SensorMessage) (*models.Device, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryDevice),
	)

	now := time.Now()

	var device models.Device
	err := i.Db.Conn.Where("device_id = ?", msg.DeviceID).First(&device).Error
	if err == nil {
		if uerr := i.Db.Conn.Model(&device).Update("last_seen", now).Error; uerr != nil {
			return nil, uerr
		}
		device.LastSeen = now
		return &device, nil
	}

	device = models.Device{
		DeviceID: msg.DeviceID,
		Type:     deviceTypeOrDefault(msg.DeviceType),
		Name:     nameOrDefault(msg.DeviceName, msg.DeviceID),
		Location: msg.Location,
		IsActive: true,
		LastSeen: now,
	}

	if err := i.Db.Conn.Create(&device).Error; err != nil {
		return nil, err
	}

	logger.Info("Registered device on first contact",
		zap.String("device_id", device.DeviceID),
		zap.String("type", string(device.Type)))

	return &device, nil
}

func deviceTypeOrDefault(raw string) models.DeviceType {
	switch t := models.DeviceType(raw); t {
	case models.DeviceTypeESP32, models.DeviceTypeRaspberryPi, models.DeviceTypeSimulator:
		return t
	}
	return models.DeviceTypeSimulator
}

func nameOrDefault(name, deviceID string) string {
	if name != "" {
		return name
	}
	return "Device " + deviceID
}

func parseTimestamp(raw string) time.Time {
	if raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return t
		}
	}
	return time.Now()
}

func (i *IOT) handleControlMessage(payload []byte) error {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryCommand),
	)

	plaintext, err := i.Codec.DecryptEnvelope(payload)
	if err != nil {
		logger.Warn("Dropping control message, decryption failed", zap.Error(err))
		common.MetricMessagesDropped.WithLabelValues("decrypt").Inc()
		return nil
	}

	var msg AckMessage
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		logger.Warn("Dropping control message, malformed JSON", zap.Error(err))
		common.MetricMessagesDropped.WithLabelValues("parse").Inc()
		return nil
	}

	if err := ackMessageSchema.Validate(&msg); err != nil {
		logger.Warn("Dropping control message, validation failed", zap.Reflect("issues", err))
		common.MetricMessagesDropped.WithLabelValues("validate").Inc()
		return nil
	}

	return i.Command.Acknowledge(msg.CommandID, msg.Status, msg.Response)
}

// RecentValues returns values of the device+sensor pair inside the window,
// newest first, for the statistical classifier tier.
func (i *IOT) RecentValues(deviceID string, sensorType models.SensorType, window time.Duration, limit int) ([]float64, error) {
	var values []float64
	err := i.Db.Conn.Model(&models.Reading{}).
		Where("device_id = ? AND sensor_type = ? AND timestamp >= ?",
			deviceID, sensorType, time.Now().Add(-window)).
		Order("timestamp desc").
		Limit(limit).
		Pluck("value", &values).Error
	return values, err
}

type IIngestImpl struct {
	iot *IOT
}

func (ii *IIngestImpl) HandleSensorMessage(payload []byte) error {
	return ii.iot.handleSensorMessage(payload)
}

func (ii *IIngestImpl) HandleControlMessage(payload []byte) error {
	return ii.iot.handleControlMessage(payload)
}

func (i *IOT) GetIIngest() IIngest {
	return &IIngestImpl{iot: i}
}
