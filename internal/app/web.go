package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/ist8308"
	"github.com/relabs-tech/mag_computer/internal/mag"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// magBroadcaster fans live samples out to connected websocket clients.
type magBroadcaster struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

func newMagBroadcaster() *magBroadcaster {
	return &magBroadcaster{clients: make(map[*websocket.Conn]struct{})}
}

func (b *magBroadcaster) add(conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[conn] = struct{}{}
	b.mu.Unlock()
}

func (b *magBroadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
}

func (b *magBroadcaster) broadcast(payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			conn.Close()
			delete(b.clients, conn)
		}
	}
}

// RunWeb serves the latest sample and driver status as JSON and pushes
// every sample to websocket subscribers.
func RunWeb() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("web: config init failed: %w", err)
	}
	cfg := config.Get()

	var (
		mu         sync.RWMutex
		lastSample mag.Sample
		haveSample bool
		lastStatus ist8308.Status
		haveStatus bool
	)
	broadcaster := newMagBroadcaster()

	clientID := cfg.MQTTClientIDWeb
	if clientID == "" {
		clientID = "mag-web-subscriber"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("web: connected to MQTT broker at %s", cfg.MQTTBroker)

	topic := cfg.TopicMag
	if topic == "" {
		topic = "mag/field"
	}
	statusTopic := cfg.TopicMagStatus
	if statusTopic == "" {
		statusTopic = "mag/status"
	}

	magToken := client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var s mag.Sample
		if err := json.Unmarshal(msg.Payload(), &s); err != nil {
			log.Printf("web: sample unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastSample = s
		haveSample = true
		mu.Unlock()
		broadcaster.broadcast(msg.Payload())
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Printf("web: subscribed to %s", topic)

	statusToken := client.Subscribe(statusTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st ist8308.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("web: status unmarshal error: %v", err)
			return
		}
		mu.Lock()
		lastStatus = st
		haveStatus = true
		mu.Unlock()
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("web: subscribed to %s", statusTopic)

	// JSON API: latest sample
	http.HandleFunc("/api/mag", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveSample {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastSample); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// JSON API: driver diagnostics
	http.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		mu.RLock()
		defer mu.RUnlock()

		if !haveStatus {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lastStatus); err != nil {
			log.Printf("web: json encode error: %v", err)
		}
	})

	// Websocket: push every sample as it arrives
	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		broadcaster.add(conn)
		defer broadcaster.remove(conn)
		defer conn.Close()

		// Drain control frames; exit when the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("web: websocket error: %v", err)
				}
				return
			}
		}
	})

	// Static files from ./web as the root
	fs := http.FileServer(http.Dir("web"))
	http.Handle("/", fs)

	port := cfg.WebServerPort
	if port == 0 {
		port = 8080
	}
	addr := fmt.Sprintf(":%d", port)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, nil)
}
