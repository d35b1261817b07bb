// cec-bridge tails a Pico-CEC device's trace stream over its serial
// port and exposes it to the network: an HTTP status/log API and
// optional MQTT publishing of remote-control key events.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/mux"
	"github.com/tarm/serial"
)

const maxLogLines = 200

type bridge struct {
	mu      sync.RWMutex
	state   string
	rxCount uint64
	txCount uint64
	lines   []logLine

	mq        mqtt.Client
	mqttTopic string
}

type logLine struct {
	Time time.Time `json:"time"`
	Line string    `json:"line"`
}

func (b *bridge) handle(raw string) {
	ev, ok := parseLine(raw)
	if !ok {
		return
	}

	b.mu.Lock()
	b.lines = append(b.lines, logLine{Time: time.Now(), Line: raw})
	if len(b.lines) > maxLogLines {
		b.lines = b.lines[1:]
	}
	switch ev.Kind {
	case "state":
		b.state = ev.State
	case "rx":
		b.rxCount++
	case "tx":
		b.txCount++
	}
	b.mu.Unlock()

	if code, pressed, ok := keyEvent(ev); ok && b.mq != nil {
		payload := fmt.Sprintf(`{"pressed":%t,"code":%d}`, pressed, code)
		b.mq.Publish(b.mqttTopic+"/key", 0, false, payload)
	}
}

func (b *bridge) statusHandler(w http.ResponseWriter, _ *http.Request) {
	b.mu.RLock()
	resp := map[string]any{
		"state": b.state,
		"rx":    b.rxCount,
		"tx":    b.txCount,
	}
	b.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *bridge) logHandler(w http.ResponseWriter, _ *http.Request) {
	b.mu.RLock()
	lines := append([]logLine(nil), b.lines...)
	b.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(lines)
}

func main() {
	port := flag.String("port", "/dev/ttyACM0", "device serial port")
	baud := flag.Int("baud", 115200, "serial baud rate")
	listen := flag.String("listen", ":8580", "HTTP listen address")
	broker := flag.String("mqtt", "", "MQTT broker URL (empty disables MQTT)")
	topic := flag.String("topic", "pico-cec", "MQTT topic prefix")
	flag.Parse()

	b := &bridge{state: "unknown", mqttTopic: *topic}

	if *broker != "" {
		opts := mqtt.NewClientOptions().
			AddBroker(*broker).
			SetClientID("cec-bridge").
			SetAutoReconnect(true)
		client := mqtt.NewClient(opts)
		if tok := client.Connect(); tok.Wait() && tok.Error() != nil {
			log.Fatalf("mqtt: %v", tok.Error())
		}
		b.mq = client
	}

	s, err := serial.OpenPort(&serial.Config{Name: *port, Baud: *baud})
	if err != nil {
		log.Fatalf("serial: %v", err)
	}

	go func() {
		sc := bufio.NewScanner(s)
		for sc.Scan() {
			b.handle(sc.Text())
		}
		if err := sc.Err(); err != nil {
			log.Fatalf("serial read: %v", err)
		}
	}()

	r := mux.NewRouter()
	r.HandleFunc("/api/status", b.statusHandler).Methods("GET")
	r.HandleFunc("/api/log", b.logHandler).Methods("GET")

	log.Printf("cec-bridge on %s (device %s)", *listen, *port)
	log.Fatal(http.ListenAndServe(*listen, r))
}
