// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial device found on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// Description returns a one-line human description.
func (p PortInfo) Description() string {
	if !p.IsUSB {
		return p.Name
	}
	desc := fmt.Sprintf("%s  USB %s:%s", p.Name, p.VID, p.PID)
	if p.Product != "" {
		desc += "  " + p.Product
	}
	if p.SerialNumber != "" {
		desc += "  (serial " + p.SerialNumber + ")"
	}
	return desc
}

// knownBoards maps USB vendor IDs to board makers
var knownBoards = map[string]string{
	"2341": "Arduino",
	"2A03": "Arduino",
	"1A86": "CH340 (Arduino clone)",
	"0403": "FTDI",
	"10C4": "Silicon Labs CP210x",
	"239A": "Adafruit",
}

// LikelyBoard reports whether the port looks like a microcontroller board,
// and the vendor name if known.
func (p PortInfo) LikelyBoard() (string, bool) {
	if !p.IsUSB {
		return "", false
	}
	name, ok := knownBoards[normalizeID(p.VID)]
	return name, ok
}

func normalizeID(id string) string {
	out := []byte(id)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}

// ListPorts returns serial devices sorted by name.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}
