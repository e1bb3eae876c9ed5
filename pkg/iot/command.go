package iot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"
)

// CommandPayload is the wire message published on the control topic when a
// command is dispatched.
type CommandPayload struct {
	CommandID   string         `json:"command_id"`
	DeviceID    string         `json:"device_id"`
	CommandType string         `json:"command_type"`
	Parameters  map[string]any `json:"parameters"`
	Timestamp   string         `json:"timestamp"`
}

func (i *IOT) dispatch(deviceID string, commandType models.CommandType, parameters map[string]any) (*models.Command, error) {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryCommand),
	)

	if parameters == nil {
		parameters = map[string]any{}
	}
	encodedParams, err := json.Marshal(parameters)
	if err != nil {
		return nil, err
	}

	command := models.Command{
		CommandID:  uuid.NewString(),
		DeviceID:   deviceID,
		Type:       commandType,
		Parameters: string(encodedParams),
		Status:     models.CommandStatusPending,
	}

	if err := i.Db.Conn.Create(&command).Error; err != nil {
		return nil, err
	}

	payload, err := json.Marshal(CommandPayload{
		CommandID:   command.CommandID,
		DeviceID:    deviceID,
		CommandType: string(commandType),
		Parameters:  parameters,
		Timestamp:   time.Now().Format(time.RFC3339),
	})
	if err != nil {
		return nil, err
	}

	if i.Publisher == nil {
		return &command, fmt.Errorf("no publisher configured, command %s stays pending", command.CommandID)
	}

	// publish failure leaves the row PENDING; the operator retries by
	// dispatching again
	if err := i.Publisher.PublishCommand(payload); err != nil {
		logger.Warn("Command publish failed, left pending",
			zap.String("command_id", command.CommandID), zap.Error(err))
		return &command, err
	}

	if err := i.Db.Conn.Model(&command).Update("status", models.CommandStatusSent).Error; err != nil {
		return nil, err
	}
	command.Status = models.CommandStatusSent

	logger.Info("Command dispatched",
		zap.String("command_id", command.CommandID),
		zap.String("device_id", deviceID),
		zap.String("type", string(commandType)))

	return &command, nil
}

func (i *IOT) acknowledge(commandID string, status string, response string) error {
	logger := common.GetLoggerWith(
		common.LoggerNameShieldCore,
		zap.String(common.LoggerFieldShieldCategory, common.LoggerCategoryCommand),
	)

	var command models.Command
	err := i.Db.Conn.Where("command_id = ?", commandID).First(&command).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// device acked a command we never issued; log and move on
		logger.Warn("Acknowledgment for unknown command", zap.String("command_id", commandID))
		return nil
	}
	if err != nil {
		return err
	}

	normalized := models.CommandStatus(strings.ToUpper(strings.TrimSpace(status)))
	switch normalized {
	case models.CommandStatusExecuted, models.CommandStatusFailed:
	default:
		logger.Warn("Acknowledgment with unknown status",
			zap.String("command_id", commandID), zap.String("status", status))
		return nil
	}

	updates := map[string]any{
		"status":   normalized,
		"response": response,
	}
	if normalized == models.CommandStatusExecuted {
		now := time.Now()
		updates["executed_at"] = &now
	}

	if err := i.Db.Conn.Model(&command).Updates(updates).Error; err != nil {
		return err
	}

	logger.Info("Command acknowledged",
		zap.String("command_id", commandID),
		zap.String("status", string(normalized)))

	return nil
}

type ICommandImpl struct {
	iot *IOT
}

func (ic *ICommandImpl) Dispatch(deviceID string, commandType models.CommandType, parameters map[string]any) (*models.Command, error) {
	return ic.iot.dispatch(deviceID, commandType, parameters)
}

func (ic *ICommandImpl) Acknowledge(commandID string, status string, response string) error {
	return ic.iot.acknowledge(commandID, status, response)
}

func (i *IOT) GetICommand() ICommand {
	return &ICommandImpl{iot: i}
}
