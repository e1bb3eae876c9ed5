package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyShieldDBType string = "SHIELD_DB_TYPE"
	EnvKeyShieldDbPath string = "SHIELD_DB_PATH"

	EnvKeyShieldHttpHostPort string = "SHIELD_HTTP_HOST_PORT"

	EnvKeyMqttBroker       string = "SHIELD_MQTT_BROKER"
	EnvKeyMqttClientID     string = "SHIELD_MQTT_CLIENT_ID"
	EnvKeyMqttUsername     string = "SHIELD_MQTT_USERNAME"
	EnvKeyMqttPassword     string = "SHIELD_MQTT_PASSWORD"
	EnvKeyMqttTopicSensors string = "SHIELD_MQTT_TOPIC_SENSORS"
	EnvKeyMqttTopicControl string = "SHIELD_MQTT_TOPIC_CONTROL"
	EnvKeyMqttTopicAlerts  string = "SHIELD_MQTT_TOPIC_ALERTS"

	EnvKeyRSAKeyDir  string = "SHIELD_RSA_KEY_DIR"
	EnvKeyRSAKeyBits string = "SHIELD_RSA_KEY_BITS"

	EnvKeyPrivacyEpsilon   string = "SHIELD_PRIVACY_EPSILON"
	EnvKeyPrivacyDelta     string = "SHIELD_PRIVACY_DELTA"
	EnvKeyPrivacyMechanism string = "SHIELD_PRIVACY_MECHANISM"

	EnvKeyClassifierBackend string = "SHIELD_CLASSIFIER_BACKEND"
	EnvKeyInferenceTimeout  string = "SHIELD_INFERENCE_TIMEOUT"
	EnvKeyAnomalyThreshold  string = "SHIELD_ANOMALY_THRESHOLD"
	EnvKeyModelPath         string = "SHIELD_MODEL_PATH"
	EnvKeyNotifySeverities  string = "SHIELD_NOTIFY_SEVERITIES"

	EnvKeyOllamaHost  string = "SHIELD_OLLAMA_HOST"
	EnvKeyOllamaModel string = "SHIELD_OLLAMA_MODEL"
	EnvKeyGeminiHost  string = "SHIELD_GEMINI_HOST"
	EnvKeyGeminiKey   string = "SHIELD_GEMINI_API_KEY"
	EnvKeyGeminiModel string = "SHIELD_GEMINI_MODEL"

	EnvKeyShieldDefaultRate  string = "SHIELD_DEFAULT_RATE"
	EnvKeyShieldDefaultBurst string = "SHIELD_DEFAULT_BURST"

	LoggerNameShieldCore       string = "shield_core"
	LoggerNameTransport        string = "transport"
	LoggerNameClassifier       string = "classifier"
	LoggerNameCrypto           string = "crypto"
	LoggerNameRestfulServer    string = "restful_server"
	LoggerFieldShieldCategory  string = "category"
	LoggerCategoryIngest       string = "ingest"
	LoggerCategoryAlert        string = "alert"
	LoggerCategoryCommand      string = "command"
	LoggerCategoryDevice       string = "device"
	LoggerCategoryNotification string = "notification"
)
