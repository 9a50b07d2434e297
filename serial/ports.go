package serial

import (
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one serial device visible to the host
type PortInfo struct {
	Device       string `json:"device"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// enumerate is swapped out by tests
var enumerate = enumerator.GetDetailedPortsList

// ListPorts returns the serial devices currently present, sorted by path
func ListPorts() ([]PortInfo, error) {
	details, err := enumerate()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		ports = append(ports, describePort(d))
	}

	sort.Slice(ports, func(i, j int) bool {
		return ports[i].Device < ports[j].Device
	})

	return ports, nil
}

func describePort(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Device:       d.Name,
		Name:         baseName(d.Name),
		IsUSB:        d.IsUSB,
		VID:          d.VID,
		PID:          d.PID,
		SerialNumber: d.SerialNumber,
		Product:      d.Product,
	}

	switch {
	case d.Product != "":
		info.Description = d.Product
	case d.IsUSB && d.VID != "":
		info.Description = fmt.Sprintf("USB serial %s:%s", d.VID, d.PID)
	default:
		info.Description = info.Name
	}

	return info
}

func baseName(device string) string {
	for i := len(device) - 1; i >= 0; i-- {
		if device[i] == '/' || device[i] == '\\' {
			return device[i+1:]
		}
	}
	return device
}
