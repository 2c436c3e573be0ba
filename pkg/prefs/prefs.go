// Package prefs reads the user preferences mirrored to the companion display
// and watches the preferences file for changes. Preferences are read-only
// here; some other tool owns writing them.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/germanamz/dronebridge/pkg/datalayer"
)

// Data-layer paths for each preference.
const (
	PathHdopEnabled           = "/pref/is_hdop_enabled"
	PathNotificationPermanent = "/pref/notification_permanent"
	PathScreenStaysOn         = "/pref/screen_stays_on"
	PathUnitSystem            = "/pref/unit_system"
)

// Unit systems.
const (
	UnitAuto     = 0
	UnitMetric   = 1
	UnitImperial = 2
)

// Preferences are the display settings pushed to the companion.
type Preferences struct {
	GPSHdopEnabled        bool `yaml:"gps_hdop_enabled"`
	NotificationPermanent bool `yaml:"notification_permanent"`
	ScreenStaysOn         bool `yaml:"screen_stays_on"`
	UnitSystem            int  `yaml:"unit_system"`
}

// Default returns the preferences used when no file exists.
func Default() Preferences {
	return Preferences{
		NotificationPermanent: true,
		UnitSystem:            UnitAuto,
	}
}

// Load reads preferences from path. A missing file yields Default.
func Load(path string) (Preferences, error) {
	p := Default()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("prefs: load: %w", err)
	}

	if err := yaml.Unmarshal(data, &p); err != nil {
		return Default(), fmt.Errorf("prefs: parse %s: %w", path, err)
	}

	if p.UnitSystem < UnitAuto || p.UnitSystem > UnitImperial {
		p.UnitSystem = UnitAuto
	}

	return p, nil
}

// Item is one preference as pushed to the data layer.
type Item struct {
	Path    string
	Payload []byte
}

// Items encodes every preference as a one-byte payload.
func (p Preferences) Items() []Item {
	return []Item{
		{PathHdopEnabled, []byte{boolByte(p.GPSHdopEnabled)}},
		{PathNotificationPermanent, []byte{boolByte(p.NotificationPermanent)}},
		{PathScreenStaysOn, []byte{boolByte(p.ScreenStaysOn)}},
		{PathUnitSystem, []byte{byte(p.UnitSystem)}},
	}
}

// Push writes every preference to sink. All items are attempted; the
// returned error joins the failures.
func Push(ctx context.Context, sink datalayer.Sink, p Preferences) error {
	var errs []error
	for _, it := range p.Items() {
		if err := sink.Put(ctx, it.Path, it.Payload); err != nil {
			errs = append(errs, fmt.Errorf("prefs: push %s: %w", it.Path, err))
		}
	}
	return errors.Join(errs...)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
