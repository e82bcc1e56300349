// Package boardpins exports the physical header pin table used to
// validate HardwareConfig pin references at load time.
package boardpins

import (
	"fmt"

	"rovercore/roverr"
)

// Pin describes one physical header pin: its position, GPIO/BCM number
// if any, every alias it is known by, and the interfaces it can serve.
type Pin struct {
	Name       string
	Physical   int
	BCM        int // -1 if the pin carries no GPIO number (power/ground)
	Row, Col   int
	Aliases    []string
	Interfaces []string
}

// Table is the exported subset of the 40-pin header (physical pins 1-16,
// 18 and 22), names and numbering matching a standard Raspberry
// Pi-compatible header plus the robot-hat pin aliases (P1, P2, PWM0,
// D0-D3) layered on top of it. Other header pins are not listed.
var Table = []Pin{
	{Name: "3V3", Physical: 1, BCM: -1, Row: 1, Col: 1, Interfaces: []string{"power"}},
	{Name: "5V", Physical: 2, BCM: -1, Row: 1, Col: 2, Interfaces: []string{"power"}},
	{Name: "GPIO2", Physical: 3, BCM: 2, Row: 2, Col: 1, Aliases: []string{"SDA1", "BCM2"}, Interfaces: []string{"i2c", "gpio"}},
	{Name: "5V", Physical: 4, BCM: -1, Row: 2, Col: 2, Interfaces: []string{"power"}},
	{Name: "GPIO3", Physical: 5, BCM: 3, Row: 3, Col: 1, Aliases: []string{"SCL1", "BCM3"}, Interfaces: []string{"i2c", "gpio"}},
	{Name: "GND", Physical: 6, BCM: -1, Row: 3, Col: 2, Interfaces: []string{"ground"}},
	{Name: "GPIO4", Physical: 7, BCM: 4, Row: 4, Col: 1, Aliases: []string{"BCM4"}, Interfaces: []string{"gpio"}},
	{Name: "GPIO14", Physical: 8, BCM: 14, Row: 4, Col: 2, Aliases: []string{"TXD", "BCM14"}, Interfaces: []string{"uart", "gpio"}},
	{Name: "GND", Physical: 9, BCM: -1, Row: 5, Col: 1, Interfaces: []string{"ground"}},
	{Name: "GPIO15", Physical: 10, BCM: 15, Row: 5, Col: 2, Aliases: []string{"RXD", "BCM15"}, Interfaces: []string{"uart", "gpio"}},
	{Name: "GPIO17", Physical: 11, BCM: 17, Row: 6, Col: 1, Aliases: []string{"BCM17", "P1"}, Interfaces: []string{"gpio"}},
	{Name: "GPIO18", Physical: 12, BCM: 18, Row: 6, Col: 2, Aliases: []string{"BCM18", "P2", "PWM0"}, Interfaces: []string{"gpio", "pwm"}},
	{Name: "GPIO27", Physical: 13, BCM: 27, Row: 7, Col: 1, Aliases: []string{"BCM27"}, Interfaces: []string{"gpio"}},
	{Name: "GND", Physical: 14, BCM: -1, Row: 7, Col: 2, Interfaces: []string{"ground"}},
	{Name: "GPIO22", Physical: 15, BCM: 22, Row: 8, Col: 1, Aliases: []string{"BCM22", "D0"}, Interfaces: []string{"gpio"}},
	{Name: "GPIO23", Physical: 16, BCM: 23, Row: 8, Col: 2, Aliases: []string{"BCM23", "D1"}, Interfaces: []string{"gpio"}},
	{Name: "GPIO24", Physical: 18, BCM: 24, Row: 9, Col: 2, Aliases: []string{"BCM24", "D2"}, Interfaces: []string{"gpio"}},
	{Name: "GPIO25", Physical: 22, BCM: 25, Row: 11, Col: 2, Aliases: []string{"BCM25", "D3"}, Interfaces: []string{"gpio"}},
}

// ByAlias looks up a pin by its canonical name, any alias, or the
// bare GPIO/BCM number rendered as e.g. "GPIO17".
func ByAlias(ref string) (Pin, bool) {
	for _, p := range Table {
		if p.Name == ref {
			return p, true
		}
		for _, a := range p.Aliases {
			if a == ref {
				return p, true
			}
		}
	}
	return Pin{}, false
}

// Validate confirms every pin reference in refs resolves against Table,
// returning a ConfigError naming the first unresolvable reference.
func Validate(refs map[string]string) error {
	for field, ref := range refs {
		if ref == "" {
			continue
		}
		if _, ok := ByAlias(ref); !ok {
			return &roverr.ConfigError{
				Path: field,
				Op:   "validate pin",
				Err:  fmt.Errorf("no such board pin %q", ref),
			}
		}
	}
	return nil
}
