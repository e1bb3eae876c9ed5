package iot

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
	"liyu1981.xyz/iot-shield-service/pkg/notify"
)

// AlertPayload is the wire message published on the alert topic for every
// raised alert.
type AlertPayload struct {
	AlertID      uint    `json:"alert_id"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	AISuggestion string  `json:"ai_suggestion"`
	Severity     string  `json:"severity"`
	DeviceID     string  `json:"device_id"`
	SensorType   string  `json:"sensor_type"`
	Value        float64 `json:"value"`
	Timestamp    string  `json:"timestamp"`
}

func (i *IOT) raiseAlert(reading *models.Reading, device *models.Device, result classify.Result) (*models.Alert, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryAlert),
	)

	// one alert per reading: check first, unique index on reading_id backs
	// the race
	var existing models.Alert
	err := i.Db.Conn.Where("reading_id = ?", reading.ID).First(&existing).Error
	if err == nil {
		logger.Info("Alert already exists for reading",
			zap.Uint("reading_id", reading.ID), zap.Uint("alert_id", existing.ID))
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	alert := models.Alert{
		ReadingID:    reading.ID,
		DeviceID:     device.DeviceID,
		Title:        fmt.Sprintf("%s anomaly on %s", reading.SensorType, device.Name),
		Description:  result.Explanation,
		AISuggestion: result.Suggestion,
		Severity:     result.Severity,
		Status:       models.AlertStatusNew,
	}

	if err := i.Db.Conn.Create(&alert).Error; err != nil {
		return nil, err
	}
	common.MetricAlertsRaised.WithLabelValues(string(alert.Severity)).Inc()

	logger.Info("Alert raised",
		zap.Uint("alert_id", alert.ID),
		zap.String("device_id", device.DeviceID),
		zap.String("severity", string(alert.Severity)))

	i.publishAlert(&alert, reading, device)

	if i.Notifier != nil && i.NotifySeverities[alert.Severity] {
		i.dispatchNotification(&alert, reading, device)
	}

	return &alert, nil
}

// dispatchNotification hands the alert to the sink fire-and-forget. Delivery
// can be slow (SMTP, webhooks); it must never hold up a classification
// worker or the shutdown drain, so nothing awaits it and failures are
// log-only.
func (i *IOT) dispatchNotification(alert *models.Alert, reading *models.Reading, device *models.Device) {
	alertCtx := notify.Context{
		DeviceID:    device.DeviceID,
		DeviceName:  device.Name,
		Location:    device.Location,
		SensorType:  string(reading.SensorType),
		Value:       reading.Value,
		Severity:    string(alert.Severity),
		Explanation: alert.Description,
		Suggestion:  alert.AISuggestion,
	}
	alertID := alert.ID

	go func() {
		logger := common.GetLoggerWith(
			common.LoggerNameShieldCore,
			zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryNotification),
		)

		defer func() {
			if r := recover(); r != nil {
				logger.Error("Notification sink panicked",
					zap.Uint("alert_id", alertID), zap.Any("panic", r))
			}
		}()

		if err := i.Notifier.Notify(alertCtx); err != nil {
			logger.Warn("Notification delivery failed",
				zap.Uint("alert_id", alertID), zap.Error(err))
		}
	}()
}

// publishAlert is best-effort: a broker outage must not undo the persisted
// alert.
func (i *IOT) publishAlert(alert *models.Alert, reading *models.Reading, device *models.Device) {
	if i.Publisher == nil {
		return
	}

	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryAlert),
	)

	payload, err := json.Marshal(AlertPayload{
		AlertID:      alert.ID,
		Title:        alert.Title,
		Description:  alert.Description,
		AISuggestion: alert.AISuggestion,
		Severity:     string(alert.Severity),
		DeviceID:     device.DeviceID,
		SensorType:   string(reading.SensorType),
		Value:        reading.Value,
		Timestamp:    reading.Timestamp.Format(time.RFC3339),
	})
	if err != nil {
		logger.Error("Failed to encode alert payload", zap.Uint("alert_id", alert.ID), zap.Error(err))
		return
	}

	if err := i.Publisher.PublishAlert(payload); err != nil {
		logger.Warn("Failed to publish alert", zap.Uint("alert_id", alert.ID), zap.Error(err))
	}
}

func (i *IOT) getDeviceAlerts(deviceID string) ([]models.Alert, error) {
	var alerts []models.Alert
	err := i.Db.Conn.
		Where("device_id = ?", deviceID).
		Order("created_at desc").
		Find(&alerts).Error
	return alerts, err
}

type IAlertImpl struct {
	iot *IOT
}

func (ia *IAlertImpl) RaiseAlert(reading *models.Reading, device *models.Device, result classify.Result) (*models.Alert, error) {
	return ia.iot.raiseAlert(reading, device, result)
}

func (ia *IAlertImpl) GetDeviceAlerts(deviceID string) ([]models.Alert, error) {
	return ia.iot.getDeviceAlerts(deviceID)
}

func (i *IOT) GetIAlert() IAlert {
	return &IAlertImpl{iot: i}
}
