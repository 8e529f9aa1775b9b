// Command keypad-scanner scans a GPIO key matrix and publishes key presses to MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/sweeney/keypad-scanner/internal/config"
	"github.com/sweeney/keypad-scanner/internal/gpio"
	"github.com/sweeney/keypad-scanner/internal/keypad"
	"github.com/sweeney/keypad-scanner/internal/mqtt"
	"github.com/sweeney/keypad-scanner/internal/status"
	"github.com/sweeney/keypad-scanner/internal/web"
)

func main() {
	configPath := flag.String("config", "", "CUE config file (default: search XDG config dirs for "+config.RelPath+")")
	flag.String("backend", gpio.BackendCdev, "GPIO backend: cdev, periph or rpio")
	flag.String("chip", gpio.DefaultChip, "gpiochip used by the cdev backend")
	flag.Duration("poll", 20*time.Millisecond, "Matrix scan interval")
	flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.String("broker", "tcp://localhost:1883", "MQTT broker address")
	flag.String("http", ":8080", "HTTP status address (empty to disable)")
	wait := flag.Bool("wait", false, "Wait for one key press, print it and exit")
	waitTimeout := flag.Duration("wait-timeout", 0, "Give up waiting after this long (0 waits forever)")

	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	var flagErr error
	flag.Visit(func(f *flag.Flag) {
		if err := applyFlag(&cfg, f); err != nil && flagErr == nil {
			flagErr = err
		}
	})
	if flagErr != nil {
		log.Fatalf("fatal: %v", flagErr)
	}

	if *wait {
		err = runWait(cfg, *waitTimeout, os.Stdout)
	} else {
		err = run(cfg)
	}
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// loadConfig reads the config file at path, or the one found in the XDG
// config directories when path is empty. A missing file yields the defaults.
func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	if path != "" {
		abs, err := filepath.Abs(path)
		if err != nil {
			return config.Config{}, fmt.Errorf("resolve config path: %w", err)
		}
		path = abs
		log.Printf("config: %s", path)
	}
	return config.LoadOrDefault(osfs.New("/"), path)
}

// applyFlag overrides a config field with an explicitly set flag.
func applyFlag(cfg *config.Config, f *flag.Flag) error {
	getter, ok := f.Value.(flag.Getter)
	if !ok {
		return nil
	}
	v := getter.Get()

	switch f.Name {
	case "backend":
		cfg.Backend = v.(string)
	case "chip":
		cfg.Chip = v.(string)
	case "poll":
		d := v.(time.Duration)
		if d <= 0 {
			return fmt.Errorf("-poll must be positive, got %v", d)
		}
		cfg.Poll = d
	case "heartbeat":
		cfg.Heartbeat = v.(time.Duration)
	case "broker":
		cfg.MQTT.Broker = v.(string)
	case "http":
		cfg.HTTPAddr = v.(string)
	}
	return nil
}

func openScanner(cfg config.Config, opts ...keypad.Option) (*keypad.Scanner, gpio.Bus, error) {
	bus, err := gpio.Open(cfg.Backend, cfg.Chip)
	if err != nil {
		return nil, nil, fmt.Errorf("init gpio: %w", err)
	}
	scanner, err := keypad.New(bus, cfg.Layout, opts...)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("init keypad: %w", err)
	}
	return scanner, bus, nil
}

// runWait blocks for a single key press and prints it.
func runWait(cfg config.Config, timeout time.Duration, out io.Writer) error {
	scanner, bus, err := openScanner(cfg, keypad.WithPollInterval(cfg.Poll))
	if err != nil {
		return err
	}
	defer bus.Close()

	return waitForKey(scanner, timeout, out)
}

func waitForKey(scanner *keypad.Scanner, timeout time.Duration, out io.Writer) error {
	var (
		key rune
		err error
	)
	if timeout > 0 {
		key, err = scanner.WaitForKeyTimeout(timeout)
	} else {
		key, err = scanner.WaitForKey()
	}
	if errors.Is(err, keypad.ErrTimeout) {
		return fmt.Errorf("no key pressed within %v", timeout)
	}
	if err != nil {
		return fmt.Errorf("wait for key: %w", err)
	}
	fmt.Fprintf(out, "%c\n", key)
	return nil
}

func run(cfg config.Config) error {
	scanner, bus, err := openScanner(cfg)
	if err != nil {
		return err
	}
	defer bus.Close()

	// Initialize MQTT
	publisher, err := mqtt.NewRealPublisher(mqtt.Options{
		Broker:      cfg.MQTT.Broker,
		ClientID:    cfg.MQTT.ClientID,
		TopicPrefix: cfg.MQTT.TopicPrefix,
	})
	if err != nil {
		return fmt.Errorf("init mqtt: %w", err)
	}
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), trackerConfig(cfg))
	tracker.SetMQTTConnected(publisher.IsConnected())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: backend=%s matrix=%dx%d poll=%v broker=%s heartbeat=%v",
		cfg.Backend, scanner.Rows(), scanner.Cols(), cfg.Poll, cfg.MQTT.Broker, cfg.Heartbeat)

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(scanner, publisher, publisher, tracker, cfg.Heartbeat, time.Now, ticker.C, sigCh)
}

func trackerConfig(cfg config.Config) status.Config {
	return status.Config{
		Backend:     cfg.Backend,
		Chip:        cfg.Chip,
		Rows:        cfg.Layout.Rows(),
		Cols:        cfg.Layout.Cols(),
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.MQTT.Broker,
		TopicPrefix: cfg.MQTT.TopicPrefix,
		HTTPAddr:    cfg.HTTPAddr,
	}
}

func runLoop(scanner *keypad.Scanner, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			if err := publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			err := scanner.Scan()
			if tracker != nil {
				tracker.RecordScan(err)
			}
			if err != nil {
				// A failed pass leaves the scanner unchanged; try again next tick.
				log.Printf("scan error: %v", err)
				continue
			}

			if key, ok := scanner.Consume(); ok {
				event := keypad.Event{Timestamp: t, Key: key}
				log.Printf("key: %c", key)
				if err := publisher.Publish(event); err != nil {
					log.Printf("publish error: %v", err)
				}
				if tracker != nil {
					tracker.RecordKey(event)
				}
			}

			if tracker == nil {
				continue
			}
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			if hbData := tracker.CheckHeartbeat(t, heartbeat); hbData != nil {
				log.Printf("heartbeat: uptime=%v presses=%d scans=%d scan_errors=%d",
					hbData.Uptime, hbData.Counts.Presses, hbData.Counts.Scans, hbData.Counts.ScanErrors)

				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				hbEvent := mqtt.SystemEvent{
					Timestamp:  hbData.Timestamp,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := publisher.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
