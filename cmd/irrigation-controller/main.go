// Command irrigation-controller reads soil and climate sensors, drives the
// pump relay and publishes irrigation events to MQTT.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/sweeney/irrigation-controller/internal/config"
	"github.com/sweeney/irrigation-controller/internal/control"
	"github.com/sweeney/irrigation-controller/internal/gpio"
	"github.com/sweeney/irrigation-controller/internal/logic"
	"github.com/sweeney/irrigation-controller/internal/metrics"
	"github.com/sweeney/irrigation-controller/internal/mqtt"
	"github.com/sweeney/irrigation-controller/internal/sensor"
	"github.com/sweeney/irrigation-controller/internal/status"
	"github.com/sweeney/irrigation-controller/internal/threshold"
	"github.com/sweeney/irrigation-controller/internal/watchdog"
	"github.com/sweeney/irrigation-controller/internal/web"
)

// potInterval is how often the threshold knob is sampled.
const potInterval = 200 * time.Millisecond

type options struct {
	configPath string
	tick       time.Duration
	broker     string
	clientID   string
	heartbeat  time.Duration
	pinPump    int
	pinStop    int
	i2cBus     string
	adcAddr    uint
	iioDir     string
	httpAddr   string
	printState bool
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "YAML tuning file (empty for built-in defaults)")
	flag.DurationVar(&o.tick, "tick", time.Second, "Control loop interval")
	flag.StringVar(&o.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&o.clientID, "client-id", "irrigation-controller", "MQTT client id")
	flag.DurationVar(&o.heartbeat, "heartbeat", time.Minute, "Heartbeat interval (0 to disable)")
	flag.IntVar(&o.pinPump, "pin-pump", gpio.PinPump, "BCM pin number for the pump relay")
	flag.IntVar(&o.pinStop, "pin-estop", gpio.PinEmergencyStop, "BCM pin number for the emergency stop button (-1 if not fitted)")
	flag.StringVar(&o.i2cBus, "i2c-bus", "", "I2C bus for the ADC (empty for the first bus)")
	flag.UintVar(&o.adcAddr, "adc-addr", sensor.DefaultAddr, "ADS1115 I2C address")
	flag.StringVar(&o.iioDir, "iio-dir", sensor.DefaultIIODir, "IIO sysfs directory of the DHT sensor")
	flag.StringVar(&o.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.BoolVar(&o.printState, "print-state", false, "Read every sensor once, print and exit")

	flag.Parse()

	if err := run(o); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(o options) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Printf("config: %s", w)
	}

	// Initialize sensors
	reader, err := sensor.NewRealReader(o.i2cBus, uint16(o.adcAddr), o.iioDir)
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer reader.Close()

	// Print state mode
	if o.printState {
		printState(os.Stdout, cfg, reader)
		return nil
	}

	// Initialize actuators. Close switches the pump off.
	pump, err := gpio.NewRealPump(o.pinPump)
	if err != nil {
		return fmt.Errorf("init pump: %w", err)
	}
	defer pump.Close()

	var button gpio.Button
	if o.pinStop >= 0 && cfg.Irrigation.EmergencyStopEnabled {
		b, err := gpio.NewRealButton(o.pinStop)
		if err != nil {
			return fmt.Errorf("init emergency stop: %w", err)
		}
		defer b.Close()
		button = b
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var source threshold.Source = threshold.Fixed(cfg.Irrigation.ThresholdPercent)
	sourceName := "fixed"
	if cfg.Potentiometer.Enabled {
		pot := threshold.NewPotentiometer(reader, cfg.Potentiometer,
			cfg.Irrigation.MinThreshold, cfg.Irrigation.MaxThreshold, cfg.Irrigation.ThresholdPercent)
		go pot.Run(ctx, potInterval)
		source = pot
		sourceName = "potentiometer"
	}

	// Manual commands from MQTT and HTTP
	commands := control.NewQueue(control.DefaultCapacity, time.Now)

	// Initialize MQTT. The loop starts without waiting for the broker;
	// anything published before the connection is buffered.
	publisher := mqtt.NewRealPublisher(mqtt.Options{
		Broker:   o.broker,
		ClientID: o.clientID,
		OnCommand: func(cmd logic.Command) {
			if err := commands.Submit(cmd); err != nil {
				log.Printf("mqtt: command %s dropped: %v", cmd.Type, err)
			}
		},
	})
	defer publisher.Close()
	go func() {
		if err := publisher.Connect(ctx, 0); err != nil {
			log.Printf("mqtt: %v", err)
		}
	}()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:          o.tick.Milliseconds(),
		HeartbeatMs:     o.heartbeat.Milliseconds(),
		Broker:          o.broker,
		HTTPAddr:        o.httpAddr,
		ConfigFile:      o.configPath,
		ThresholdSource: sourceName,
		Irrigation:      cfg.Irrigation,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

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
	if o.httpAddr != "" {
		srv := web.New(o.httpAddr, tracker, web.Options{
			Commands: commands,
			Metrics:  m,
			Gatherer: reg,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", o.httpAddr)
	}

	// The watchdog exits the process when the loop stops kicking it, after
	// switching the pump off. systemd restarts the daemon.
	wd := watchdog.New(cfg.Safety.LivenessTimeout, nil)
	go wd.Run(ctx, time.Second, func(stalled time.Duration) {
		log.Printf("watchdog: control loop stalled for %v, exiting", stalled)
		if err := pump.Set(false); err != nil {
			log.Printf("watchdog: pump off: %v", err)
		}
		os.Exit(1)
	})

	log.Printf("started: tick=%v broker=%s heartbeat=%v threshold=%s", o.tick, o.broker, o.heartbeat, sourceName)

	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	d := &daemon{
		cfg:       cfg,
		reader:    reader,
		pump:      pump,
		button:    button,
		threshold: source,
		commands:  commands,
		publisher: publisher,
		tracker:   tracker,
		metrics:   m,
		watchdog:  wd,
		heartbeat: o.heartbeat,
	}
	return runLoop(d, time.Now, ticker.C, sigCh)
}

// daemon holds the collaborators of the run loop. Only tracker and
// publisher are required; button, metrics and watchdog may be nil.
type daemon struct {
	cfg       config.Config
	reader    sensor.Reader
	pump      gpio.Pump
	button    gpio.Button
	threshold threshold.Source
	commands  *control.Queue
	publisher mqtt.Publisher
	tracker   *status.Tracker
	metrics   *metrics.Metrics
	watchdog  *watchdog.Watchdog
	heartbeat time.Duration

	pumpRetry bool // last pump write failed; retry on the next tick
	restart   bool // restart recommendation already logged
}

func runLoop(d *daemon, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	ctrl := logic.NewController(d.cfg, startTime)

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

			if err := d.pump.Set(false); err != nil {
				log.Printf("pump: switch off on shutdown: %v", err)
			}

			d.refreshMQTT()
			snap := d.tracker.Snapshot()
			event := mqtt.SystemEvent{
				Timestamp:  now(),
				Event:      "SHUTDOWN",
				Reason:     signalName,
				Retained:   true,
				RawPayload: status.FormatStatusEvent(snap, "SHUTDOWN", signalName),
			}
			if err := d.publisher.PublishSystem(event); err != nil {
				log.Printf("failed to publish shutdown event: %v", err)
			} else {
				log.Printf("published shutdown event")
			}
			return nil

		case <-tick:
			d.step(ctrl, now())
		}
	}
}

// step runs one control cycle at t.
func (d *daemon) step(ctrl *logic.Controller, t time.Time) {
	began := time.Now()

	for _, cmd := range d.commands.Drain() {
		log.Printf("command: %s from %s", cmd.Type, cmd.Source)
		ctrl.Submit(cmd)
	}

	pressed := false
	if d.button != nil {
		p, err := d.button.Pressed()
		if err != nil {
			log.Printf("button read error: %v", err)
		} else {
			pressed = p
		}
	}

	reads := sensor.ReadDue(d.reader, ctrl.Due(t), t)
	for _, r := range reads {
		if r.Err != nil {
			log.Printf("sensor: %s read error: %v", r.Sample.Kind, r.Err)
		}
	}

	out := ctrl.Tick(logic.TickInput{
		Now:             t,
		Reads:           reads,
		Threshold:       d.threshold.Current(),
		EmergencyButton: pressed,
	})

	if out.PumpChanged || d.pumpRetry {
		if err := d.pump.Set(out.PumpOn); err != nil {
			log.Printf("pump: set %s: %v", status.PumpString(out.PumpOn), err)
			d.pumpRetry = true
		} else {
			d.pumpRetry = false
		}
	}

	if out.Recover {
		log.Printf("sensor: reinitialising bus")
		if err := d.reader.Reinit(); err != nil {
			log.Printf("sensor: reinit failed: %v", err)
		}
	}

	if out.RestartRecommended && !d.restart {
		log.Printf("supervisor: restart recommended")
	}
	d.restart = out.RestartRecommended

	for _, event := range out.Events {
		log.Printf("event: %s", describe(event))
		if err := d.publisher.Publish(event); err != nil {
			log.Printf("publish error: %v", err)
			// Don't crash on publish failure
		}
	}

	if d.watchdog != nil {
		d.watchdog.Kick()
	}

	// Update status tracker for HTTP/metrics consumers
	d.tracker.Publish(out.Snapshot)
	d.refreshMQTT()

	if hbData := ctrl.CheckHeartbeat(t, d.heartbeat); hbData != nil {
		log.Printf("heartbeat: uptime=%v started=%d completed=%d denied=%d faults=%d",
			hbData.Uptime, hbData.Counts.IrrigationsStarted, hbData.Counts.IrrigationsCompleted,
			hbData.Counts.Denied, hbData.Counts.SensorFaults)

		// Refresh network info for heartbeat
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
		snap := d.tracker.Snapshot()
		hbEvent := mqtt.SystemEvent{
			Timestamp:  hbData.Timestamp,
			Event:      "HEARTBEAT",
			RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
		}
		if err := d.publisher.PublishSystem(hbEvent); err != nil {
			log.Printf("heartbeat publish error: %v", err)
		}
	}

	d.metrics.Observe(d.tracker.Snapshot())
	d.metrics.ObserveTick(time.Since(began))
}

// refreshMQTT copies connection and buffer state into the tracker when the
// publisher reports them.
func (d *daemon) refreshMQTT() {
	if cs, ok := d.publisher.(mqtt.ConnectionStatus); ok {
		d.tracker.SetMQTTConnected(cs.IsConnected())
	}
	if bs, ok := d.publisher.(mqtt.BufferStatus); ok {
		d.tracker.SetMQTTBuffer(bs.Buffered(), bs.Dropped())
	}
}

func describe(e logic.Event) string {
	s := string(e.Type)
	if e.From != e.To {
		s += fmt.Sprintf(" %s->%s", e.From, e.To)
	}
	if e.Sensor != "" {
		s += " sensor=" + string(e.Sensor)
	}
	if e.Reason != "" {
		s += " reason=" + string(e.Reason)
	}
	if e.Manual {
		s += " manual"
	}
	return s
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
