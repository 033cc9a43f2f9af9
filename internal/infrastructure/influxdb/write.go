package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLevels  = "bridge_levels"
	MeasurementSession = "bridge_session"
)

// WriteLevel records a level reported by the hub. channel is fan, flap or
// window; origin is field or visualization.
func (c *Client) WriteLevel(channel string, level int, origin string) {
	c.writePoint(MeasurementLevels,
		map[string]string{"channel": channel, "origin": origin},
		map[string]any{"level": level},
	)
}

// WriteSessionState records a bus session state change.
func (c *Client) WriteSessionState(state string) {
	c.writePoint(MeasurementSession, nil, map[string]any{"state": state})
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}
