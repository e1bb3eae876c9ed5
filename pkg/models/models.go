package models

import (
	"strings"
	"time"
)

type DeviceType string

const (
	DeviceTypeESP32       DeviceType = "ESP32"
	DeviceTypeRaspberryPi DeviceType = "RASPBERRY_PI"
	DeviceTypeSimulator   DeviceType = "SIMULATOR"
)

type SensorType string

const (
	SensorTypeTemperature    SensorType = "TEMPERATURE"
	SensorTypeHumidity       SensorType = "HUMIDITY"
	SensorTypeGas            SensorType = "GAS"
	SensorTypeFlame          SensorType = "FLAME"
	SensorTypeMotion         SensorType = "MOTION"
	SensorTypeLight          SensorType = "LIGHT"
	SensorTypeCPUTemperature SensorType = "CPU_TEMPERATURE"
	SensorTypeMemoryUsage    SensorType = "MEMORY_USAGE"
	SensorTypeDiskUsage      SensorType = "DISK_USAGE"
)

// NormalizeSensorType upper-cases wire input; sensor_type is case-insensitive
// on the wire but stored upper-case.
func NormalizeSensorType(s string) SensorType {
	return SensorType(strings.ToUpper(strings.TrimSpace(s)))
}

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// severityRank orders severities LOW < MEDIUM < HIGH < CRITICAL.
var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

func (s Severity) Rank() int {
	return severityRank[s]
}

func (s Severity) Valid() bool {
	_, ok := severityRank[s]
	return ok
}

type AlertStatus string

const (
	AlertStatusNew          AlertStatus = "NEW"
	AlertStatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	AlertStatusResolved     AlertStatus = "RESOLVED"
	AlertStatusIgnored      AlertStatus = "IGNORED"
)

type CommandType string

const (
	CommandTypeTurnOn  CommandType = "TURN_ON"
	CommandTypeTurnOff CommandType = "TURN_OFF"
	CommandTypeAdjust  CommandType = "ADJUST"
	CommandTypeAlert   CommandType = "ALERT"
)

type CommandStatus string

const (
	CommandStatusPending  CommandStatus = "PENDING"
	CommandStatusSent     CommandStatus = "SENT"
	CommandStatusExecuted CommandStatus = "EXECUTED"
	CommandStatusFailed   CommandStatus = "FAILED"
)

type Device struct {
	ID        uint       `gorm:"primaryKey"`
	DeviceID  string     `gorm:"uniqueIndex"`
	Type      DeviceType `gorm:"type:varchar(20)"`
	Name      string
	Location  string
	IsActive  bool `gorm:"default:true"`
	LastSeen  time.Time
	CreatedAt time.Time
}

type Reading struct {
	ID           uint       `gorm:"primaryKey"`
	DeviceID     string     `gorm:"index:idx_readings_device_sensor_ts"`
	SensorType   SensorType `gorm:"type:varchar(20);index:idx_readings_device_sensor_ts"`
	Value        float64
	Unit         string
	IsAnomaly    bool
	AnomalyScore *float64
	Timestamp    time.Time `gorm:"index:idx_readings_device_sensor_ts"`
}

type Alert struct {
	ID           uint   `gorm:"primaryKey"`
	ReadingID    uint   `gorm:"uniqueIndex"`
	DeviceID     string `gorm:"index"`
	Title        string
	Description  string
	AISuggestion string
	Severity     Severity    `gorm:"type:varchar(10);check:severity IN ('LOW','MEDIUM','HIGH','CRITICAL')"`
	Status       AlertStatus `gorm:"type:varchar(20);default:NEW"`
	CreatedAt    time.Time
}

type Command struct {
	ID         uint          `gorm:"primaryKey"`
	CommandID  string        `gorm:"uniqueIndex"`
	DeviceID   string        `gorm:"index"`
	Type       CommandType   `gorm:"type:varchar(20)"`
	Parameters string        // JSON-encoded parameter map
	Status     CommandStatus `gorm:"type:varchar(20);default:PENDING"`
	Response   string
	CreatedAt  time.Time
	ExecutedAt *time.Time
}
