package api

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
)

// SerialDeviceInfo describes a serial port a control unit may be attached to.
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
}

func (s *Server) handleSerialDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	ports, err := s.listPorts()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list serial ports: %v", err))
		return
	}
	devices := make([]SerialDeviceInfo, 0, len(ports))
	for _, p := range ports {
		devices = append(devices, SerialDeviceInfo{PortPath: p, FriendlyName: getFriendlyName(p)})
	}
	writeJSON(w, http.StatusOK, devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	deviceName := filepath.Base(portPath)
	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "cu.usbserial"), strings.HasPrefix(deviceName, "tty.usbserial"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "rfcomm"):
		return fmt.Sprintf("Bluetooth Serial (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	case strings.HasPrefix(deviceName, "COM"):
		return fmt.Sprintf("Serial Port (%s)", deviceName)
	default:
		return deviceName
	}
}
