// Package thermal reads the Station's CPU temperature.
package thermal

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gonum.org/v1/gonum/floats"
)

// ErrNoSensor is returned when the host exposes no readable sensor
var ErrNoSensor = errors.New("no temperature sensor available")

// Sensor reports a temperature in degrees Celsius
type Sensor interface {
	Temperature(ctx context.Context) (float64, error)
}

// SensorFunc adapts a function to Sensor
type SensorFunc func(ctx context.Context) (float64, error)

func (f SensorFunc) Temperature(ctx context.Context) (float64, error) { return f(ctx) }

// System returns the sensor for the host OS
func System() Sensor {
	if runtime.GOOS == "windows" {
		return wmiSensor{}
	}
	return SysfsSensor{Root: "/sys/class/thermal"}
}

// SysfsSensor reads the hottest Linux thermal zone
type SysfsSensor struct {
	Root string
}

func (s SysfsSensor) Temperature(ctx context.Context) (float64, error) {
	zones, err := doublestar.Glob(os.DirFS(s.Root), "thermal_zone*/temp")
	if err != nil || len(zones) == 0 {
		return 0, ErrNoSensor
	}
	readings := make([]float64, 0, len(zones))
	for _, z := range zones {
		data, err := os.ReadFile(filepath.Join(s.Root, z))
		if err != nil {
			continue
		}
		milli, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
		if err != nil {
			continue
		}
		readings = append(readings, milli/1000)
	}
	return hottest(readings)
}

// wmiSensor queries the ACPI thermal zone through wmic
type wmiSensor struct{}

func (wmiSensor) Temperature(ctx context.Context) (float64, error) {
	out, err := exec.CommandContext(ctx, "wmic",
		`/namespace:\\root\wmi`, "PATH", "MSAcpi_ThermalZoneTemperature",
		"get", "CurrentTemperature", "/value").Output()
	if err != nil {
		return 0, ErrNoSensor
	}
	return parseWMI(out)
}

// parseWMI converts CurrentTemperature=<tenths of Kelvin> lines to the
// hottest value in Celsius.
func parseWMI(out []byte) (float64, error) {
	var readings []float64
	for _, line := range bytes.Split(out, []byte("\n")) {
		key, value, ok := strings.Cut(strings.TrimSpace(string(line)), "=")
		if !ok || key != "CurrentTemperature" {
			continue
		}
		tenths, err := strconv.ParseFloat(value, 64)
		if err != nil {
			continue
		}
		readings = append(readings, tenths/10-273.15)
	}
	return hottest(readings)
}

func hottest(readings []float64) (float64, error) {
	if len(readings) == 0 {
		return 0, ErrNoSensor
	}
	return floats.Max(readings), nil
}
