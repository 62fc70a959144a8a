// Package influxdb provides InfluxDB connectivity for the gateway's bus
// metrics.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series storage for:
//   - Telegram volume, broken down by source and destination address
//   - L_Data.con confirmation latency and success rate
//
// # Usage
//
//	cfg := config.MetricsConfig{
//	    Enabled: true,
//	    URL:     "http://localhost:8086",
//	    Token:   "your-token",
//	    Org:     "knxgw",
//	    Bucket:  "bus-metrics",
//	}
//
//	client, err := influxdb.Connect(ctx, cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteTelegramMetric("1.1.10", "1/1/98", 2)
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to the metrics section's batch_size and
// flush_interval settings. This reduces network overhead for
// high-frequency bus traffic.
package influxdb
