package iot

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
	_ "liyu1981.xyz/iot-shield-service/pkg/testing"
)

func sensorPayload(t *testing.T, msg SensorMessage) []byte {
	payload, err := json.Marshal(msg)
	require.NoError(t, err)
	return payload
}

func TestHandleSensorMessage_CreatesDeviceAndReading(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	payload := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		DeviceType: "ESP32",
		DeviceName: "Kitchen Node",
		SensorType: "temperature",
		Value:      22.5,
		Unit:       "C",
		Location:   "kitchen",
	})

	err := iotObj.Ingest.HandleSensorMessage(payload)
	require.NoError(t, err)
	iotObj.WaitClassifications()

	var device models.Device
	err = iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&device).Error
	require.NoError(t, err)
	assert.Equal(t, models.DeviceTypeESP32, device.Type)
	assert.Equal(t, "Kitchen Node", device.Name)
	assert.True(t, device.IsActive)
	assert.False(t, device.LastSeen.IsZero())

	var reading models.Reading
	err = iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error
	require.NoError(t, err)
	assert.Equal(t, models.SensorTypeTemperature, reading.SensorType)
	assert.Equal(t, 22.5, reading.Value)
	assert.False(t, reading.IsAnomaly)
}

func TestHandleSensorMessage_EncryptedEnvelope(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	plaintext := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "humidity",
		Value:      48.0,
	})

	envelope, err := iotObj.Codec.EncryptEnvelope(plaintext)
	require.NoError(t, err)
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)

	err = iotObj.Ingest.HandleSensorMessage(payload)
	require.NoError(t, err)
	iotObj.WaitClassifications()

	var reading models.Reading
	err = iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error
	require.NoError(t, err)
	assert.Equal(t, 48.0, reading.Value)
}

func TestHandleSensorMessage_DeviceDefaults(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	payload := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "light",
		Value:      300,
	})

	err := iotObj.Ingest.HandleSensorMessage(payload)
	require.NoError(t, err)
	iotObj.WaitClassifications()

	var device models.Device
	err = iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&device).Error
	require.NoError(t, err)
	assert.Equal(t, models.DeviceTypeSimulator, device.Type)
	assert.Equal(t, "Device "+deviceID, device.Name)
}

func TestHandleSensorMessage_UpdatesLastSeen(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	payload := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "temperature",
		Value:      21.0,
	})

	require.NoError(t, iotObj.Ingest.HandleSensorMessage(payload))

	var first models.Device
	require.NoError(t, iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&first).Error)

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, iotObj.Ingest.HandleSensorMessage(payload))
	iotObj.WaitClassifications()

	var second models.Device
	require.NoError(t, iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&second).Error)
	assert.True(t, second.LastSeen.After(first.LastSeen))

	var count int64
	iotObj.Db.Conn.Model(&models.Device{}).Where("device_id = ?", deviceID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestHandleSensorMessage_DropsMalformed(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	// malformed JSON is consumed, not retried
	err := iotObj.Ingest.HandleSensorMessage([]byte("{not json"))
	assert.NoError(t, err)

	// missing device_id fails validation
	err = iotObj.Ingest.HandleSensorMessage(sensorPayload(t, SensorMessage{
		SensorType: "temperature",
		Value:      20,
	}))
	assert.NoError(t, err)

	// missing sensor_type fails validation
	deviceID := uuid.NewString()
	err = iotObj.Ingest.HandleSensorMessage(sensorPayload(t, SensorMessage{
		DeviceID: deviceID,
		Value:    20,
	}))
	assert.NoError(t, err)

	var count int64
	iotObj.Db.Conn.Model(&models.Device{}).Where("device_id = ?", deviceID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestHandleSensorMessage_AnomalyRaisesAlert(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	publisher := &recordingPublisher{}
	iotObj.Publisher = publisher

	deviceID := uuid.NewString()
	payload := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "gas",
		Value:      0.9, // past the critical gas threshold
	})

	require.NoError(t, iotObj.Ingest.HandleSensorMessage(payload))
	iotObj.WaitClassifications()

	var reading models.Reading
	require.NoError(t, iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error)
	assert.True(t, reading.IsAnomaly)
	require.NotNil(t, reading.AnomalyScore)
	assert.Equal(t, 1.0, *reading.AnomalyScore)

	var alert models.Alert
	require.NoError(t, iotObj.Db.Conn.Where("reading_id = ?", reading.ID).First(&alert).Error)
	assert.Equal(t, models.SeverityCritical, alert.Severity)
	assert.Equal(t, models.AlertStatusNew, alert.Status)
	assert.Equal(t, deviceID, alert.DeviceID)

	require.Len(t, publisher.Alerts(), 1)
	var published AlertPayload
	require.NoError(t, json.Unmarshal(publisher.Alerts()[0], &published))
	assert.Equal(t, alert.ID, published.AlertID)
	assert.Equal(t, "CRITICAL", published.Severity)
	assert.Equal(t, deviceID, published.DeviceID)
}

func TestHandleSensorMessage_NormalValueNoAlert(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	require.NoError(t, iotObj.Ingest.HandleSensorMessage(sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "gas",
		Value:      0.2,
	})))
	iotObj.WaitClassifications()

	var reading models.Reading
	require.NoError(t, iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error)
	assert.False(t, reading.IsAnomaly)

	var count int64
	iotObj.Db.Conn.Model(&models.Alert{}).Where("device_id = ?", deviceID).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestHandleSensorMessage_RateLimited(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	iotObj.Limiters.SetLimiter(deviceID, rate.Limit(1), 1)

	payload := sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "temperature",
		Value:      20,
	})

	require.NoError(t, iotObj.Ingest.HandleSensorMessage(payload))
	require.NoError(t, iotObj.Ingest.HandleSensorMessage(payload)) // over limit, dropped
	iotObj.WaitClassifications()

	var count int64
	iotObj.Db.Conn.Model(&models.Reading{}).Where("device_id = ?", deviceID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestHandleSensorMessage_MessageTimestamp(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	sent := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, iotObj.Ingest.HandleSensorMessage(sensorPayload(t, SensorMessage{
		DeviceID:   deviceID,
		SensorType: "humidity",
		Value:      50,
		Timestamp:  sent.Format(time.RFC3339),
	})))
	iotObj.WaitClassifications()

	var reading models.Reading
	require.NoError(t, iotObj.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error)
	assert.Equal(t, sent.Unix(), reading.Timestamp.Unix())
}

func TestRecentValues(t *testing.T) {
	common.SetTestLoggerNop()

	ctrl, iotObj, _, _, _ := GetMockIOTWithMemorySqliteDialector(t, false, false, false)
	defer ctrl.Finish()

	deviceID := uuid.NewString()
	now := time.Now()

	for i, v := range []float64{10, 20, 30} {
		require.NoError(t, iotObj.Db.Conn.Create(&models.Reading{
			DeviceID:   deviceID,
			SensorType: models.SensorTypeTemperature,
			Value:      v,
			Timestamp:  now.Add(time.Duration(i-2) * time.Minute),
		}).Error)
	}
	// outside the window
	require.NoError(t, iotObj.Db.Conn.Create(&models.Reading{
		DeviceID:   deviceID,
		SensorType: models.SensorTypeTemperature,
		Value:      99,
		Timestamp:  now.Add(-2 * time.Hour),
	}).Error)
	// different sensor
	require.NoError(t, iotObj.Db.Conn.Create(&models.Reading{
		DeviceID:   deviceID,
		SensorType: models.SensorTypeHumidity,
		Value:      55,
		Timestamp:  now,
	}).Error)

	values, err := iotObj.RecentValues(deviceID, models.SensorTypeTemperature, time.Hour, 100)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 20, 10}, values)

	limited, err := iotObj.RecentValues(deviceID, models.SensorTypeTemperature, time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{30, 20}, limited)
}
