//go:build integration

package mqtt

import (
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// These tests need a broker at 127.0.0.1:1883:
//
//	go test -tags=integration ./internal/infrastructure/mqtt/...

func TestIntegration_RetainedHealth(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "dsbridge-int-pub"

	health := Topics{}.BridgeHealth("dstiny-int")
	client, err := Connect(cfg, Will{Topic: health, Payload: []byte(`{"status":"offline"}`)})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if !client.IsConnected() {
		t.Fatal("IsConnected() = false after Connect")
	}
	if err := client.PublishRetained(health, []byte(`{"status":"healthy"}`)); err != nil {
		t.Fatalf("PublishRetained() error = %v", err)
	}

	received := make(chan string, 1)
	opts := pahomqtt.NewClientOptions().AddBroker("tcp://127.0.0.1:1883").SetClientID("dsbridge-int-sub")
	sub := pahomqtt.NewClient(opts)
	if token := sub.Connect(); token.WaitTimeout(5*time.Second) && token.Error() != nil {
		t.Fatalf("subscriber connect: %v", token.Error())
	}
	defer sub.Disconnect(100)

	sub.Subscribe(health, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		select {
		case received <- string(msg.Payload()):
		default:
		}
	})

	select {
	case got := <-received:
		if got != `{"status":"healthy"}` {
			t.Errorf("retained payload = %s", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("retained health message not received")
	}
}
