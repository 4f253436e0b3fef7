// Package influxdb writes media server telemetry to InfluxDB v2.
//
// The telemetry recorder uses it as its point sink: each dispatched UPnP
// event becomes an "upnp_dispatch" point and each SSDP announcement an
// "ssdp_advertisement" point. Writes are batched and non-blocking; batch
// failures arrive on the handler set with WithErrorHandler.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB,
//	    influxdb.WithDefaultTag("udn", udn),
//	    influxdb.WithErrorHandler(func(err error) { log.Warn("influx write", "error", err) }),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package influxdb
