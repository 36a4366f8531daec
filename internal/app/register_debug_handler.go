// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/mag_computer/internal/ist8308"
)

// registerDebugSession holds WebSocket connection state for register
// debugging against a live transport.
type registerDebugSession struct {
	conn *websocket.Conn
	bus  ist8308.Transport
}

// RegisterCmd is the single websocket command schema.
// Action is one of "read", "read_all", "write".
type RegisterCmd struct {
	Action  string `json:"action"`
	Address string `json:"addr,omitempty"`
	Value   string `json:"value,omitempty"`
}

// RegisterResponse is the websocket response schema.
type RegisterResponse struct {
	Type        string                 `json:"type"` // "register_data", "register_map", "status", "error"
	Address     string                 `json:"addr,omitempty"`
	Value       string                 `json:"value,omitempty"`
	Registers   map[string]string      `json:"registers,omitempty"` // for read_all
	Timestamp   string                 `json:"timestamp,omitempty"`
	Message     string                 `json:"message,omitempty"`
	RegisterMap []ist8308.RegisterInfo `json:"register_map,omitempty"`
}

// handleRegisterDebugWS upgrades the connection and serves register
// commands until the client disconnects.
func handleRegisterDebugWS(bus ist8308.Transport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("register_debug: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		session := &registerDebugSession{conn: conn, bus: bus}

		// Send register map on connection
		if err := session.sendRegisterMap(); err != nil {
			log.Printf("register_debug: send register map error: %v", err)
			return
		}

		for {
			var cmd RegisterCmd
			if err := conn.ReadJSON(&cmd); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("register_debug: websocket error: %v", err)
				}
				return
			}
			session.handle(cmd)
		}
	}
}

func (s *registerDebugSession) handle(cmd RegisterCmd) {
	switch cmd.Action {
	case "read":
		s.readRegister(cmd.Address)
	case "read_all":
		s.readAll()
	case "write":
		s.writeRegister(cmd.Address, cmd.Value)
	default:
		s.sendError(fmt.Sprintf("unknown action %q", cmd.Action))
	}
}

func (s *registerDebugSession) readRegister(addr string) {
	reg, err := parseRegister(addr)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	value, err := s.bus.ReadRegister(reg)
	if err != nil {
		s.sendError(fmt.Sprintf("read 0x%02X: %v", byte(reg), err))
		return
	}
	s.send(RegisterResponse{
		Type:      "register_data",
		Address:   fmt.Sprintf("0x%02X", byte(reg)),
		Value:     fmt.Sprintf("0x%02X", value),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *registerDebugSession) readAll() {
	registers := make(map[string]string)
	for _, info := range ist8308.GetRegisterMap() {
		reg, err := parseRegister(info.Address)
		if err != nil {
			continue
		}
		value, err := s.bus.ReadRegister(reg)
		if err != nil {
			s.sendError(fmt.Sprintf("read 0x%02X: %v", byte(reg), err))
			return
		}
		registers[info.Address] = fmt.Sprintf("0x%02X", value)
	}
	s.send(RegisterResponse{
		Type:      "register_data",
		Registers: registers,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *registerDebugSession) writeRegister(addr, value string) {
	reg, err := parseRegister(addr)
	if err != nil {
		s.sendError(err.Error())
		return
	}
	v, err := strconv.ParseUint(value, 0, 8)
	if err != nil {
		s.sendError(fmt.Sprintf("invalid value %q", value))
		return
	}
	if err := s.bus.WriteRegister(reg, byte(v)); err != nil {
		s.sendError(fmt.Sprintf("write 0x%02X: %v", byte(reg), err))
		return
	}
	s.send(RegisterResponse{
		Type:    "status",
		Message: fmt.Sprintf("wrote 0x%02X to 0x%02X", byte(v), byte(reg)),
	})
}

func (s *registerDebugSession) sendRegisterMap() error {
	return s.conn.WriteJSON(RegisterResponse{
		Type:        "register_map",
		RegisterMap: ist8308.GetRegisterMap(),
	})
}

func (s *registerDebugSession) send(resp RegisterResponse) {
	if err := s.conn.WriteJSON(resp); err != nil {
		log.Printf("register_debug: write error: %v", err)
	}
}

func (s *registerDebugSession) sendError(msg string) {
	s.send(RegisterResponse{Type: "error", Message: msg})
}

func parseRegister(addr string) (ist8308.Register, error) {
	v, err := strconv.ParseUint(addr, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q", addr)
	}
	return ist8308.Register(v), nil
}
