package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTelegramMetric records one accepted bus telegram as a time-series
// point, tagged by source/destination so dashboards can break volume
// down per device or group address.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - source: the frame's source individual address ("area.line.device")
//   - destination: the frame's destination address
//   - apci: the decoded APCI short-form code, or -1 if the frame carries none
func (c *Client) WriteTelegramMetric(source, destination string, apci int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"telegrams",
		map[string]string{
			"source":      source,
			"destination": destination,
		},
		map[string]interface{}{
			"apci": apci,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteConfirmationLatency records how long the transceiver took between
// handing a frame to the bus and receiving its L_Data.con confirmation.
//
// Parameters:
//   - destination: the frame's destination address
//   - success: whether the confirmation reported success
//   - latency: elapsed time between send and confirmation
func (c *Client) WriteConfirmationLatency(destination string, success bool, latency time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"confirmations",
		map[string]string{
			"destination": destination,
		},
		map[string]interface{}{
			"success_latency_ms": float64(latency.Milliseconds()),
			"success":            success,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("bus_stats",
//	    map[string]string{"node": "1.1.1"},
//	    map[string]interface{}{"busy_percent": 4.5})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
