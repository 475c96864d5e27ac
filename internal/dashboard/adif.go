package dashboard

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/SensorsIot/wsjt-x-MCP/internal/coordinator"
	"github.com/SensorsIot/wsjt-x-MCP/internal/geo"
)

// adifLogger appends one minimal ADIF QSO record per completed contact
// to a log file. No pack repo or teacher file imports an ADIF library,
// so this stays on the same strings.Builder/os.OpenFile approach
// internal/iniwriter uses for its own opaque text output.
type adifLogger struct {
	mu   sync.Mutex
	path string
}

func newADIFLogger(path string) *adifLogger {
	return &adifLogger{path: path}
}

func adifField(name, value string) string {
	return fmt.Sprintf("<%s:%d>%s ", name, len(value), value)
}

func renderQSORecord(o coordinator.QSOOutcome, at time.Time) string {
	var b strings.Builder
	b.WriteString(adifField("CALL", o.Status.TargetCall))
	b.WriteString(adifField("QSO_DATE", at.UTC().Format("20060102")))
	b.WriteString(adifField("TIME_ON", at.UTC().Format("150405")))
	if o.Slice.FrequencyHz != 0 {
		b.WriteString(adifField("FREQ", fmt.Sprintf("%.6f", float64(o.Slice.FrequencyHz)/1e6)))
	}
	if o.Slice.Mode != "" {
		b.WriteString(adifField("MODE", string(o.Slice.Mode)))
	}
	b.WriteString(adifField("STATION_CALLSIGN", o.Status.MyCall))
	b.WriteString(adifField("MY_GRIDSQUARE", o.Status.MyGrid))
	if o.Status.TargetGrid != "" {
		b.WriteString(adifField("GRIDSQUARE", o.Status.TargetGrid))
		if dist, bearing, err := geo.DistanceBearing(o.Status.MyGrid, o.Status.TargetGrid); err == nil {
			b.WriteString(adifField("DISTANCE", fmt.Sprintf("%.0f", dist)))
			b.WriteString(adifField("BEARING", fmt.Sprintf("%.0f", bearing)))
		}
	}
	b.WriteString("<EOR>\n")
	return b.String()
}

func (a *adifLogger) appendQSO(o coordinator.QSOOutcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.OpenFile(a.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("dashboard: open adif log: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(renderQSORecord(o, time.Now())); err != nil {
		return fmt.Errorf("dashboard: write adif record: %w", err)
	}
	return nil
}
