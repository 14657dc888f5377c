// Package influxdb writes device telemetry to InfluxDB v2.
//
// Every state change of a device produces one device_metrics point tagged
// with device_id, carrying one float field per numeric or boolean property
// (target_temperature_c=21.5,power=1). Request round trips are written to
// device_requests.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.SetOnError(func(err error) { log.Warn("influx write failed", "error", err) })
//
//	client.WriteProperties("bf3a1c", map[string]any{"power": true, "current_temperature": 19.5}, time.Time{})
//
// Writes are batched according to influxdb.batch_size and
// influxdb.flush_interval; errors arrive asynchronously.
package influxdb
