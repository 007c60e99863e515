// Package audio keeps the Station's volume, mute and output device
// selection. Applying them to the OS mixer happens outside the Station.
package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownDevice is returned when selecting a device that is not listed
var ErrUnknownDevice = errors.New("unknown audio device")

// Device is an output device
type Device struct {
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

// Controller is the in-memory audio state
type Controller struct {
	mu      sync.RWMutex
	volume  int
	muted   bool
	devices []string
	active  string
}

// NewController creates a controller with the given output devices. The
// first device is active.
func NewController(devices ...string) *Controller {
	c := &Controller{volume: 50, devices: devices}
	if len(devices) > 0 {
		c.active = devices[0]
	}
	return c
}

// Volume returns the volume in percent
func (c *Controller) Volume() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.volume
}

// SetVolume sets the volume, clamped to 0..100
func (c *Controller) SetVolume(v int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = min(max(v, 0), 100)
}

// Muted reports whether output is muted
func (c *Controller) Muted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.muted
}

// SetMuted mutes or unmutes output
func (c *Controller) SetMuted(m bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.muted = m
}

// Devices lists output devices with the active one flagged
func (c *Controller) Devices() []Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, Device{Name: d, Active: d == c.active})
	}
	return out
}

// SetActiveDevice selects the output device by name
func (c *Controller) SetActiveDevice(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.devices {
		if d == name {
			c.active = name
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownDevice, name)
}
