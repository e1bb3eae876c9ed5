package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"liyu1981.xyz/iot-shield-service/pkg/iot/mocks"
	_ "liyu1981.xyz/iot-shield-service/pkg/testing"

	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/crypto"
	"liyu1981.xyz/iot-shield-service/pkg/db"
	"liyu1981.xyz/iot-shield-service/pkg/iot"
	"liyu1981.xyz/iot-shield-service/pkg/models"
	"liyu1981.xyz/iot-shield-service/pkg/privacy"
)

var (
	testCodecOnce sync.Once
	testCodec     *crypto.Codec
)

func getTestCodec(t *testing.T) *crypto.Codec {
	testCodecOnce.Do(func() {
		codec, err := crypto.LoadOrGenerate(t.TempDir(), 2048)
		if err != nil {
			t.Fatalf("failed to generate test codec: %v", err)
		}
		testCodec = codec
	})
	return testCodec
}

func setupTestServer(t *testing.T, limiters *iot.RateLimiterStore) *RestfulServer {
	iotObj := iot.IOT{
		Db:               *db.GetInstance(db.UseMemorySqliteDialector()),
		Codec:            getTestCodec(t),
		Classifier:       classify.NewChain(classify.NewRuleTier()),
		Limiters:         limiters,
		NotifySeverities: iot.DefaultNotifySeverities(),
	}
	iotObj.WithServices(iot.ServiceOpts{
		Ingest:  iotObj.GetIIngest(),
		Alert:   iotObj.GetIAlert(),
		Command: iotObj.GetICommand(),
	})

	rs := &RestfulServer{
		Server: gin.Default(),
		Iot:    &iotObj,
	}

	rs.Setup()

	return rs
}

func TestHealthCheck(t *testing.T) {
	rs := setupTestServer(t, nil)

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()

	rs.Server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestGetPublicKey(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)

	req := httptest.NewRequest("GET", "/keys/public", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PublicKey string `json:"public_key"`
		KeySize   int    `json:"key_size"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp.PublicKey, "BEGIN PUBLIC KEY")
	assert.Equal(t, 2048, resp.KeySize)
}

func TestGetPrivacyBudget(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)
	rs.Iot.Injector = privacy.NewInjector(1.0, 1e-5, privacy.MechanismGaussian)

	// consume some budget
	rs.Iot.Injector.AddNoise(models.SensorTypeTemperature, 22.0)
	rs.Iot.Injector.AddNoise(models.SensorTypeHumidity, 40.0)

	req := httptest.NewRequest("GET", "/privacy/budget", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Epsilon      float64 `json:"epsilon"`
		Delta        float64 `json:"delta"`
		TotalEpsilon float64 `json:"total_epsilon"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1.0, resp.Epsilon)
	assert.Equal(t, 2.0, resp.TotalEpsilon)
}

func TestGetPrivacyBudget_NotConfigured(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)

	req := httptest.NewRequest("GET", "/privacy/budget", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetAlerts(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)

	deviceID := uuid.NewString()
	require.NoError(t, rs.Iot.Db.Conn.Create(&models.Reading{
		DeviceID:   deviceID,
		SensorType: models.SensorTypeGas,
		Value:      0.9,
		IsAnomaly:  true,
	}).Error)

	var reading models.Reading
	require.NoError(t, rs.Iot.Db.Conn.Where("device_id = ?", deviceID).First(&reading).Error)
	require.NoError(t, rs.Iot.Db.Conn.Create(&models.Alert{
		ReadingID: reading.ID,
		DeviceID:  deviceID,
		Title:     "GAS anomaly",
		Severity:  models.SeverityCritical,
		Status:    models.AlertStatusNew,
	}).Error)

	req := httptest.NewRequest("GET", "/devices/"+deviceID+"/alerts", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var alerts []AlertResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)
	assert.Equal(t, "CRITICAL", alerts[0].Severity)
	assert.Equal(t, deviceID, alerts[0].DeviceID)
	assert.Equal(t, reading.ID, alerts[0].ReadingID)
	assert.NotZero(t, alerts[0].AlertID)
}

func TestGetAlerts_ServiceError(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)
	deviceID := uuid.NewString()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockIAlert := mocks.NewMockIAlert(ctrl)
	rs.Iot.Alert = mockIAlert
	mockIAlert.EXPECT().
		GetDeviceAlerts(gomock.Eq(deviceID)).
		Return(nil, fmt.Errorf("just causing error")).
		Times(1)

	req := httptest.NewRequest("GET", "/devices/"+deviceID+"/alerts", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPostCommand(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	publisher := mocks.NewMockPublisher(ctrl)
	publisher.EXPECT().PublishCommand(gomock.Any()).Return(nil).Times(1)
	rs.Iot.Publisher = publisher

	deviceID := uuid.NewString()
	body, _ := json.Marshal(CommandRequest{
		CommandType: "TURN_ON",
		Parameters:  map[string]any{"relay": 1},
	})

	req := httptest.NewRequest("POST", "/devices/"+deviceID+"/commands", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		CommandID string `json:"command_id"`
		Status    string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.CommandID)
	assert.Equal(t, string(models.CommandStatusSent), resp.Status)

	var saved models.Command
	require.NoError(t, rs.Iot.Db.Conn.Where("command_id = ?", resp.CommandID).First(&saved).Error)
	assert.Equal(t, deviceID, saved.DeviceID)
}

func TestPostCommand_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	{
		rs := setupTestServer(t, nil)
		deviceID := uuid.NewString()
		// empty payload should be rejected
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/commands", bytes.NewReader([]byte("{}")))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	{
		rs := setupTestServer(t, nil)
		deviceID := uuid.NewString()
		body, _ := json.Marshal(CommandRequest{CommandType: "MAKE_COFFEE"})
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/commands", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}

	{
		// publish failure leaves the command pending and reports upstream
		rs := setupTestServer(t, nil)
		deviceID := uuid.NewString()

		ctrl := gomock.NewController(t)
		defer ctrl.Finish()
		publisher := mocks.NewMockPublisher(ctrl)
		publisher.EXPECT().PublishCommand(gomock.Any()).Return(fmt.Errorf("broker down")).Times(1)
		rs.Iot.Publisher = publisher

		body, _ := json.Marshal(CommandRequest{CommandType: "TURN_OFF"})
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/commands", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadGateway, w.Code)

		var saved models.Command
		require.NoError(t, rs.Iot.Db.Conn.Where("device_id = ?", deviceID).First(&saved).Error)
		assert.Equal(t, models.CommandStatusPending, saved.Status)
	}
}

func TestLimiter(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, iot.NewRateLimiterStore(0, 0))

	deviceID := uuid.NewString()

	// nothing should pass below
	{
		req := httptest.NewRequest("GET", "/devices/"+deviceID+"/alerts", nil)
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	}

	{
		body, _ := json.Marshal(CommandRequest{CommandType: "TURN_ON"})
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/commands", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
	}

	// raising the device limit over the admin endpoint unblocks it
	{
		body, _ := json.Marshal(LimiterRequest{Rate: 10, Burst: 10})
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/limiter", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		req = httptest.NewRequest("GET", "/devices/"+deviceID+"/alerts", nil)
		w = httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestPostLimiter_EdgeCases(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, iot.NewRateLimiterStore(2, 2))

	deviceID := uuid.NewString()

	// empty payload should be rejected
	req := httptest.NewRequest("POST", "/devices/"+deviceID+"/limiter", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSetLimiter_NoStore(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil) // no limiter store

	deviceID := uuid.NewString()

	{
		// without a limiter store the admin endpoint is a no-op success
		body, _ := json.Marshal(LimiterRequest{Rate: 2, Burst: 2})
		req := httptest.NewRequest("POST", "/devices/"+deviceID+"/limiter", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	{
		// and alerts are served instead of rate limited
		req := httptest.NewRequest("GET", "/devices/"+deviceID+"/alerts", nil)
		w := httptest.NewRecorder()
		rs.Server.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	common.SetTestLoggerNop()

	rs := setupTestServer(t, nil)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
