package iot

import (
	"sync"

	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/crypto"
	"liyu1981.xyz/iot-shield-service/pkg/db"
	"liyu1981.xyz/iot-shield-service/pkg/models"
	"liyu1981.xyz/iot-shield-service/pkg/notify"
	"liyu1981.xyz/iot-shield-service/pkg/privacy"
)

type IIngest interface {
	HandleSensorMessage(payload []byte) error
	HandleControlMessage(payload []byte) error
}

type IAlert interface {
	RaiseAlert(reading *models.Reading, device *models.Device, result classify.Result) (*models.Alert, error)
	GetDeviceAlerts(deviceID string) ([]models.Alert, error)
}

type ICommand interface {
	Dispatch(deviceID string, commandType models.CommandType, parameters map[string]any) (*models.Command, error)
	Acknowledge(commandID string, status string, response string) error
}

// Publisher is the outbound half of the transport: alert payloads go to the
// alert topic, dispatched commands to the control topic.
type Publisher interface {
	PublishAlert(payload []byte) error
	PublishCommand(payload []byte) error
}

// IOT is the service core. Capability interfaces default to the built-in
// implementations; tests swap them via WithServices.
type IOT struct {
	Db         db.DB
	Codec      *crypto.Codec
	Classifier *classify.Chain
	Publisher  Publisher
	Notifier   notify.Sink
	Injector   *privacy.Injector
	Limiters   *RateLimiterStore

	// NotifySeverities gates the notification sink per alert severity.
	NotifySeverities map[models.Severity]bool

	Ingest  IIngest
	Alert   IAlert
	Command ICommand

	// classifyWg tracks in-flight classification goroutines so shutdown
	// and tests can wait for them.
	classifyWg sync.WaitGroup
}

type ServiceOpts struct {
	Ingest  IIngest
	Alert   IAlert
	Command ICommand
}

func (i *IOT) WithServices(opts ServiceOpts) *IOT {
	if opts.Ingest != nil {
		i.Ingest = opts.Ingest
	}
	if opts.Alert != nil {
		i.Alert = opts.Alert
	}
	if opts.Command != nil {
		i.Command = opts.Command
	}
	return i
}

// DefaultNotifySeverities is applied when no notify set is configured.
func DefaultNotifySeverities() map[models.Severity]bool {
	return map[models.Severity]bool{
		models.SeverityHigh:     true,
		models.SeverityCritical: true,
	}
}

// WaitClassifications blocks until all spawned classification goroutines
// finish. Used by graceful shutdown and by tests.
func (i *IOT) WaitClassifications() {
	i.classifyWg.Wait()
}
