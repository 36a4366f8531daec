package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/mag_computer/internal/config"
	"github.com/relabs-tech/mag_computer/internal/ist8308"
	"github.com/relabs-tech/mag_computer/internal/mag"
)

// RunConsoleMQTT subscribes to the magnetometer topics and prints live
// readings and driver status to the terminal.
func RunConsoleMQTT() error {
	if err := config.InitGlobal("./mag_config.txt"); err != nil {
		return fmt.Errorf("console: config init failed: %w", err)
	}
	cfg := config.Get()

	clientID := cfg.MQTTClientIDConsole
	if clientID == "" {
		clientID = "mag-console-subscriber"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(clientID)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)
	defer client.Disconnect(250)

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
			log.Printf("console: sample unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[MAG]  X=%8.2f  Y=%8.2f  Z=%8.2f  |B|=%8.2f µT\n",
			s.Mx, s.My, s.Mz, s.Norm,
		)
	})
	magToken.Wait()
	if magToken.Error() != nil {
		return magToken.Error()
	}
	log.Printf("console: subscribed to %s", topic)

	statusToken := client.Subscribe(statusTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var st ist8308.Status
		if err := json.Unmarshal(msg.Payload(), &st); err != nil {
			log.Printf("console: status unmarshal error: %v", err)
			return
		}

		fmt.Printf(
			"[STAT] state=%s transfers=%d bad_transfers=%d bad_checks=%d\n",
			st.State, st.Transfers, st.BadTransfers, st.BadRegisterChecks,
		)
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("console: subscribed to %s", statusTopic)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("console: shutting down")
	return nil
}
