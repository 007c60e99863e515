/*
Package monitoring provides Prometheus metrics for the Station.

Each Metrics owns a private registry, exposed by the diagnostics API at
/metrics. Methods are safe on a nil *Metrics so components can be built
without metrics in tests.

# Usage

	metrics := monitoring.NewMetrics()

	// Add middleware to the diagnostics router
	router.Use(monitoring.Middleware(metrics))

	// Record Station events
	metrics.RecordLaunch("Steam", "launching")
	metrics.SetTemperature(71.5)

	// Time a monitoring tick
	timer := monitoring.NewTimer(metrics, "station")
	// ... tick ...
	timer.Stop()

# Metrics Endpoint

	handler := promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{})
	router.GET("/metrics", gin.WrapH(handler))
*/
package monitoring
