package iot

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"
	"liyu1981.xyz/iot-shield-service/pkg/classify"
	"liyu1981.xyz/iot-shield-service/pkg/crypto"
	"liyu1981.xyz/iot-shield-service/pkg/db"
	"liyu1981.xyz/iot-shield-service/pkg/iot/mocks"
)

var errTestPublish = errors.New("publish failed")

var (
	testCodecOnce sync.Once
	testCodec     *crypto.Codec
)

// getTestCodec generates one keypair per test run; 2048-bit generation is
// too slow to repeat per test.
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

func GetMockIOTWithMemorySqliteDialector(t *testing.T, useMockIIngest, useMockIAlert, useMockICommand bool) (
	*gomock.Controller,
	*IOT,
	*mocks.MockIIngest,
	*mocks.MockIAlert,
	*mocks.MockICommand,
) {
	ctrl := gomock.NewController(t)

	mockIIngest := mocks.NewMockIIngest(ctrl)
	mockIAlert := mocks.NewMockIAlert(ctrl)
	mockICommand := mocks.NewMockICommand(ctrl)

	dialector := db.UseMemorySqliteDialector()
	dbInstance := db.GetInstance(dialector) // ensure migrations

	iotInstance := &IOT{
		Db:               *dbInstance,
		Codec:            getTestCodec(t),
		Classifier:       classify.NewChain(classify.NewRuleTier()),
		Limiters:         NewRateLimiterStore(rate.Limit(1000), 1000),
		NotifySeverities: DefaultNotifySeverities(),
	}

	ingestService := iotInstance.GetIIngest()
	if useMockIIngest {
		ingestService = mockIIngest
	}

	alertService := iotInstance.GetIAlert()
	if useMockIAlert {
		alertService = mockIAlert
	}

	commandService := iotInstance.GetICommand()
	if useMockICommand {
		commandService = mockICommand
	}

	iotInstance.WithServices(ServiceOpts{
		Ingest:  ingestService,
		Alert:   alertService,
		Command: commandService,
	})

	return ctrl, iotInstance, mockIIngest, mockIAlert, mockICommand
}

func ParseLogs(r io.Reader) []any {
	scanner := bufio.NewScanner(r)
	var logs []any

	for scanner.Scan() {
		line := scanner.Text()
		var j any
		if err := json.Unmarshal([]byte(line), &j); err == nil {
			logs = append(logs, j)
		}
	}
	return logs
}

// recordingPublisher captures published payloads for assertions.
type recordingPublisher struct {
	mu       sync.Mutex
	alerts   [][]byte
	commands [][]byte
	fail     bool
}

func (p *recordingPublisher) PublishAlert(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errTestPublish
	}
	p.alerts = append(p.alerts, payload)
	return nil
}

func (p *recordingPublisher) PublishCommand(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return errTestPublish
	}
	p.commands = append(p.commands, payload)
	return nil
}

func (p *recordingPublisher) Alerts() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.alerts...)
}

func (p *recordingPublisher) Commands() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.commands...)
}
