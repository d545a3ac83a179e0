package main

import (
	"context"

	"geoexpr/pkg/api"
	"geoexpr/pkg/config"
	"geoexpr/pkg/flight"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/projection"
	"geoexpr/pkg/st"

	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	cfg.ConfigureLogging()
	frame.SetParallelism(cfg.Parallelism)

	if cfg.Reprojection {
		r, err := projection.New(context.Background(), projection.Options{
			ExtensionDir: cfg.ExtensionDir,
			Install:      cfg.InstallSpatial,
		})
		if err != nil {
			// to_srid then only passes through rows that need no transform
			logrus.WithError(err).Warn("reprojection unavailable")
		} else {
			defer r.Close()
			st.SetReprojector(r)
		}
	}

	apiServer := api.NewAPIServer(cfg.RESTPort)
	go func() {
		if err := apiServer.Start(); err != nil {
			logrus.WithError(err).Error("REST API server stopped")
		}
	}()

	opts := flight.Options{SpoolRows: cfg.SpoolRows, SpoolDir: cfg.SpoolDir}
	if err := flight.StartFlightServer(opts, cfg.FlightPort); err != nil {
		logrus.WithError(err).Fatal("Flight server failed")
	}
}
