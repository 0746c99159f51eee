// Package httpserver runs the hub's HTTP surface with graceful shutdown.
//
// Server.Run blocks until its context is cancelled and then drains in-flight
// requests within the shutdown timeout, which makes it a natural errgroup member:
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	g.Go(func() error { return srv.Run(ctx, router) })
//
// Listen failures are wrapped with ErrStart and shutdown failures with ErrShutdown.
// HealthCheckHandler provides liveness and readiness checks.
package httpserver
