// Package influxdb records bridge telemetry in InfluxDB v2.
//
// Two measurements are written through the non-blocking, batched write API:
//
//	bridge_levels   tags channel (fan|flap|window), origin (field|visualization); field level
//	bridge_session  field state (init|restart|online)
//
// Writes on a disabled or closed client are dropped. Async write errors are
// delivered to the SetOnError callback.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLevel("fan", 44, "field")
package influxdb
