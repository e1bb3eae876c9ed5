package http

import (
	"net/http"
	"time"

	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/models"

	"github.com/gin-gonic/gin"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"
)

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetPublicKey serves the service public key so devices can encrypt their
// telemetry envelopes.
func (rs *RestfulServer) GetPublicKey(c *gin.Context) {
	pem, err := rs.Iot.Codec.PublicKeyPEM()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key": pem,
		"key_size":   rs.Iot.Codec.KeyBits(),
	})
}

func (rs *RestfulServer) GetPrivacyBudget(c *gin.Context) {
	if rs.Iot.Injector == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "privacy injector not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"epsilon":       rs.Iot.Injector.Epsilon(),
		"delta":         rs.Iot.Injector.Delta(),
		"total_epsilon": rs.Iot.Injector.TotalEpsilon(),
	})
}

// AlertResponse is the API shape of an alert, decoupled from the gorm model.
type AlertResponse struct {
	AlertID      uint      `json:"alert_id"`
	ReadingID    uint      `json:"reading_id"`
	DeviceID     string    `json:"device_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	AISuggestion string    `json:"ai_suggestion"`
	Severity     string    `json:"severity"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

func (rs *RestfulServer) GetAlerts(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var alerts []models.Alert
	var err error
	if alerts, err = rs.Iot.Alert.GetDeviceAlerts(deviceID); err != nil {
		c.JSON(http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusOK, common.Mapper(alerts, func(a models.Alert) AlertResponse {
		return AlertResponse{
			AlertID:      a.ID,
			ReadingID:    a.ReadingID,
			DeviceID:     a.DeviceID,
			Title:        a.Title,
			Description:  a.Description,
			AISuggestion: a.AISuggestion,
			Severity:     string(a.Severity),
			Status:       string(a.Status),
			CreatedAt:    a.CreatedAt,
		}
	}))
}

type CommandRequest struct {
	CommandType string         `json:"command_type"`
	Parameters  map[string]any `json:"parameters"`
}

var commandRequestSchema = z.Struct(z.Shape{
	"CommandType": z.String().Min(1).Required(),
})

var validCommandTypes = map[models.CommandType]bool{
	models.CommandTypeTurnOn:  true,
	models.CommandTypeTurnOff: true,
	models.CommandTypeAdjust:  true,
	models.CommandTypeAlert:   true,
}

func (rs *RestfulServer) PostCommand(c *gin.Context) {
	deviceID := c.Param("device_id")

	if !rs.CheckDeviceLimiter(deviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	var req CommandRequest
	if err := commandRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	commandType := models.CommandType(req.CommandType)
	if !validCommandTypes[commandType] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown command_type"})
		return
	}

	command, err := rs.Iot.Command.Dispatch(deviceID, commandType, req.Parameters)
	if err != nil {
		// the row may exist in PENDING even when publish failed
		status := http.StatusBadGateway
		if command == nil {
			status = http.StatusInternalServerError
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"command_id": command.CommandID,
		"status":     command.Status,
	})
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().Required(),
	"burst": z.Int().Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceID := c.Param("device_id")

	var req LimiterRequest
	if err := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err})
		return
	}

	rs.SetLimiter(deviceID, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}
