package api

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"go.bug.st/serial"

	"github.com/banshee-data/anygrow.bridge/internal/httputil"
	"github.com/banshee-data/anygrow.bridge/internal/monitoring"
)

// SerialDeviceInfo describes a serial port found on the host.
type SerialDeviceInfo struct {
	PortPath     string `json:"port_path"`
	FriendlyName string `json:"friendly_name"`
}

func systemPorts() ([]string, error) {
	return serial.GetPortsList()
}

// listSerialDevices serves GET /api/serial/devices.
func (s *Server) listSerialDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	ports, err := s.listPorts()
	if err != nil {
		monitoring.Logf("Error enumerating serial ports: %v", err)
		httputil.InternalServerError(w, "failed to enumerate serial ports")
		return
	}
	sort.Strings(ports)

	devices := make([]SerialDeviceInfo, 0, len(ports))
	for _, portPath := range ports {
		devices = append(devices, SerialDeviceInfo{
			PortPath:     portPath,
			FriendlyName: getFriendlyName(portPath),
		})
	}
	httputil.WriteJSONOK(w, devices)
}

// getFriendlyName generates a user-friendly name for a serial port
func getFriendlyName(portPath string) string {
	parts := strings.Split(portPath, "/")
	deviceName := parts[len(parts)-1]

	switch {
	case strings.HasPrefix(deviceName, "ttyUSB"):
		return fmt.Sprintf("USB Serial Adapter (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyACM"):
		return fmt.Sprintf("USB CDC Device (%s)", deviceName)
	case strings.HasPrefix(deviceName, "ttyAMA"):
		return fmt.Sprintf("Raspberry Pi Serial (%s)", deviceName)
	case strings.HasPrefix(deviceName, "COM"):
		return fmt.Sprintf("Windows COM Port (%s)", deviceName)
	default:
		return deviceName
	}
}
