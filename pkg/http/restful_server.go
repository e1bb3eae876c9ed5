package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"liyu1981.xyz/iot-shield-service/pkg/iot"
)

type RestfulServer struct {
	Server *gin.Engine
	Iot    *iot.IOT
}

func (rs *RestfulServer) GetLimiter(deviceID string) *rate.Limiter {
	if rs.Iot.Limiters == nil {
		return nil
	}
	return rs.Iot.Limiters.GetLimiter(deviceID)
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceID string) bool {
	limiter := rs.GetLimiter(deviceID)
	if limiter == nil {
		return true
	}
	return limiter.Allow()
}

func (rs *RestfulServer) SetLimiter(deviceID string, deviceRate float64, deviceBurst int) {
	if rs.Iot.Limiters == nil {
		return
	}
	rs.Iot.Limiters.SetLimiter(deviceID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/keys/public", rs.GetPublicKey)
	rs.Server.GET("/privacy/budget", rs.GetPrivacyBudget)
	rs.Server.GET("/metrics", gin.WrapH(promhttp.Handler()))

	devices := rs.Server.Group("/devices/:device_id")
	{
		devices.GET("/alerts", rs.GetAlerts)
		devices.POST("/commands", rs.PostCommand)
		devices.POST("/limiter", rs.PostLimiter)
	}
}
