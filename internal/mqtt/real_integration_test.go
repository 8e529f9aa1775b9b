//go:build integration

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/url"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/sweeney/keypad-scanner/internal/keypad"
)

// startBroker runs an anonymous Mosquitto broker and returns its tcp:// URL.
func startBroker(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	ctx := context.Background()

	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err, "start mosquitto")
	t.Cleanup(func() {
		if err := c.Terminate(ctx); err != nil {
			t.Logf("terminate mosquitto: %v", err)
		}
	})

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "1883/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// subscribe returns a channel receiving every message on topic.
func subscribe(t *testing.T, broker, topic string) <-chan paho.Message {
	t.Helper()
	msgs := make(chan paho.Message, 16)
	client := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("keypad-test-sub"))
	tok := client.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	t.Cleanup(func() { client.Disconnect(250) })

	tok = client.Subscribe(topic, 1, func(_ paho.Client, m paho.Message) { msgs <- m })
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	return msgs
}

func TestRealPublisherPublishesKeys(t *testing.T) {
	broker := startBroker(t)
	msgs := subscribe(t, broker, "it/keypad/#")

	p, err := NewRealPublisher(Options{Broker: broker, ClientID: "keypad-test-pub", TopicPrefix: "it/keypad"})
	require.NoError(t, err)
	defer p.Close()
	require.True(t, p.IsConnected())

	require.NoError(t, p.Publish(keypad.Event{Timestamp: time.Now(), Key: '7'}))
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}))

	got := map[string][]byte{}
	for len(got) < 2 {
		select {
		case m := <-msgs:
			got[m.Topic()] = m.Payload()
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out, received %d messages", len(got))
		}
	}

	var key Payload
	require.NoError(t, json.Unmarshal(got["it/keypad/events"], &key))
	assert.Equal(t, "7", key.Keypad.Key)

	var sys SystemPayload
	require.NoError(t, json.Unmarshal(got["it/keypad/system"], &sys))
	assert.Equal(t, "STARTUP", sys.System.Event)
	assert.Equal(t, 0, p.Buffered())
}

// freeAddr returns a loopback address nothing is listening on.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// forward accepts connections on addr and pipes them to target.
func forward(t *testing.T, addr, target string) {
	t.Helper()
	ln, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			in, err := ln.Accept()
			if err != nil {
				return
			}
			out, err := net.Dial("tcp", target)
			if err != nil {
				in.Close()
				continue
			}
			go func() { io.Copy(out, in); out.Close() }()
			go func() { io.Copy(in, out); in.Close() }()
		}
	}()
}

func TestRealPublisherReplaysBufferedMessages(t *testing.T) {
	broker := startBroker(t)
	msgs := subscribe(t, broker, "it/offline/#")

	// The publisher dials an address that refuses connections until
	// forwarding to the broker is switched on.
	u, err := url.Parse(broker)
	require.NoError(t, err)
	addr := freeAddr(t)

	p, err := NewRealPublisher(Options{
		Broker:               "tcp://" + addr,
		ClientID:             "keypad-test-offline",
		TopicPrefix:          "it/offline",
		ConnectRetryInterval: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	defer p.Close()
	require.False(t, p.IsConnected())

	require.NoError(t, p.Publish(keypad.Event{Timestamp: time.Now(), Key: '4'}))
	require.NoError(t, p.Publish(keypad.Event{Timestamp: time.Now(), Key: '2'}))
	require.NoError(t, p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: "STARTUP"}))
	assert.Equal(t, 3, p.Buffered())

	forward(t, addr, u.Host)

	require.Eventually(t, func() bool { return p.Buffered() == 0 && p.IsConnected() },
		15*time.Second, 100*time.Millisecond)

	var keys []string
	var system []string
	for len(keys)+len(system) < 3 {
		select {
		case m := <-msgs:
			switch m.Topic() {
			case "it/offline/events":
				var key Payload
				require.NoError(t, json.Unmarshal(m.Payload(), &key))
				keys = append(keys, key.Keypad.Key)
			case "it/offline/system":
				var sys SystemPayload
				require.NoError(t, json.Unmarshal(m.Payload(), &sys))
				system = append(system, sys.System.Event)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("timed out, received keys=%v system=%v", keys, system)
		}
	}

	assert.Equal(t, []string{"4", "2"}, keys)
	assert.Equal(t, []string{"STARTUP"}, system)
}
