package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/common"
	"liyu1981.xyz/iot-shield-service/pkg/crypto"
	"liyu1981.xyz/iot-shield-service/pkg/db"
	shieldHttp "liyu1981.xyz/iot-shield-service/pkg/http"
	"liyu1981.xyz/iot-shield-service/pkg/iot"
	"liyu1981.xyz/iot-shield-service/pkg/models"
	"liyu1981.xyz/iot-shield-service/pkg/notify"
	"liyu1981.xyz/iot-shield-service/pkg/privacy"
	"liyu1981.xyz/iot-shield-service/pkg/transport"
)

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Fatalf("Invalid %s, should be a float64 value: %v", key, err)
	}
	return v
}

func envIntOr(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("Invalid %s, should be an int value: %v", key, err)
	}
	return v
}

func buildClassifier(iotCore *iot.IOT) *classify.Chain {
	logger := common.GetLoggerWith(common.LoggerNameClassifier)

	var tiers []classify.Tier

	timeout := time.Duration(envFloatOr(common.EnvKeyInferenceTimeout,
		classify.DefaultInferenceTimeout.Seconds()) * float64(time.Second))

	// comma-separated, tried in order, e.g. "gemini,ollama" for remote
	// inference with a local fallback
	for _, backend := range strings.Split(envOr(common.EnvKeyClassifierBackend, "none"), ",") {
		switch backend = strings.TrimSpace(backend); backend {
		case "gemini":
			tiers = append(tiers, classify.NewLLMTier(classify.NewGeminiBackend(
				os.Getenv(common.EnvKeyGeminiHost),
				os.Getenv(common.EnvKeyGeminiModel),
				os.Getenv(common.EnvKeyGeminiKey),
			), timeout))
		case "ollama":
			tiers = append(tiers, classify.NewLLMTier(classify.NewOllamaBackend(
				os.Getenv(common.EnvKeyOllamaHost),
				os.Getenv(common.EnvKeyOllamaModel),
			), timeout))
		case "none", "":
		default:
			log.Fatal("Unknown " + common.EnvKeyClassifierBackend + ": " + backend)
		}
	}

	if modelPath := strings.TrimSpace(os.Getenv(common.EnvKeyModelPath)); modelPath != "" {
		forest, err := classify.LoadForest(modelPath)
		if err != nil {
			logger.Warn("Failed to load isolation forest model, skipping statistical tier",
				zap.String("path", modelPath), zap.Error(err))
		} else {
			threshold := envFloatOr(common.EnvKeyAnomalyThreshold, 0.8)
			tiers = append(tiers, classify.NewStatsTier(forest, iotCore, threshold))
		}
	}

	// deterministic thresholds are always the terminal tier
	tiers = append(tiers, classify.NewRuleTier())

	return classify.NewChain(tiers...)
}

func parseNotifySeverities() map[models.Severity]bool {
	raw := strings.TrimSpace(os.Getenv(common.EnvKeyNotifySeverities))
	if raw == "" {
		return iot.DefaultNotifySeverities()
	}

	set := map[models.Severity]bool{}
	for _, part := range strings.Split(raw, ",") {
		severity := models.Severity(strings.ToUpper(strings.TrimSpace(part)))
		if !severity.Valid() {
			log.Fatal("Invalid severity in " + common.EnvKeyNotifySeverities + ": " + part)
		}
		set[severity] = true
	}
	return set
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Fatal("Error loading .env file, copy .env.example to .env first if in development")
	}

	logger := common.GetLogger()

	var dbInstance *db.DB
	shieldDbType := os.Getenv(common.EnvKeyShieldDBType)
	switch shieldDbType {
	case "file":
		dbInstance = db.GetInstance(db.UseSqliteDialector())
	case "memory":
		dbInstance = db.GetInstance(db.UseMemorySqliteDialector())
	default:
		log.Fatal("Unknown SHIELD_DB_TYPE: " + shieldDbType)
	}

	codec, err := crypto.LoadOrGenerate(
		envOr(common.EnvKeyRSAKeyDir, "keys"),
		envIntOr(common.EnvKeyRSAKeyBits, crypto.DefaultKeyBits),
	)
	if err != nil {
		log.Fatalf("Failed to load or generate RSA keypair: %v", err)
	}

	injector := privacy.NewInjector(
		envFloatOr(common.EnvKeyPrivacyEpsilon, 1.0),
		envFloatOr(common.EnvKeyPrivacyDelta, 1e-5),
		privacy.Mechanism(envOr(common.EnvKeyPrivacyMechanism, string(privacy.MechanismGaussian))),
	)

	defaultRate := envFloatOr(common.EnvKeyShieldDefaultRate, 10)
	defaultBurst := envIntOr(common.EnvKeyShieldDefaultBurst, 20)

	iotCore := iot.IOT{
		Db:               *dbInstance,
		Codec:            codec,
		Injector:         injector,
		Notifier:         notify.NewLogSink(),
		Limiters:         iot.NewRateLimiterStore(rate.Limit(defaultRate), defaultBurst),
		NotifySeverities: parseNotifySeverities(),
	}
	iotCore.Classifier = buildClassifier(&iotCore)
	iotCore.WithServices(iot.ServiceOpts{
		Ingest:  iotCore.GetIIngest(),
		Alert:   iotCore.GetIAlert(),
		Command: iotCore.GetICommand(),
	})

	mqttClient := transport.NewClient(transport.Config{
		Broker:       envOr(common.EnvKeyMqttBroker, "tcp://localhost:1883"),
		ClientID:     envOr(common.EnvKeyMqttClientID, "shield-"+uuid.NewString()[:8]),
		Username:     os.Getenv(common.EnvKeyMqttUsername),
		Password:     os.Getenv(common.EnvKeyMqttPassword),
		TopicSensors: envOr(common.EnvKeyMqttTopicSensors, "shield/sensors"),
		TopicControl: envOr(common.EnvKeyMqttTopicControl, "shield/control"),
		TopicAlerts:  envOr(common.EnvKeyMqttTopicAlerts, "shield/alerts"),
	})
	iotCore.Publisher = mqttClient

	if err := mqttClient.Connect(); err != nil {
		log.Fatalf("Failed to connect to MQTT broker: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go mqttClient.RunReceiveLoop(ctx, iotCore.Ingest)

	httpHostPort := envOr(common.EnvKeyShieldHttpHostPort, ":1080")
	if !common.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	rs := &shieldHttp.RestfulServer{
		Server: gin.Default(),
		Iot:    &iotCore,
	}
	rs.Setup()

	go func() {
		logger.Info("Starting HTTP server on: " + httpHostPort)
		if err := rs.Server.Run(httpHostPort); err != nil {
			log.Fatalf("http server failed to serve: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	cancel()
	iotCore.WaitClassifications()
	mqttClient.Disconnect()
}
