// Command geoexpr-eval runs a plan over a GeoParquet file and writes the
// result as GeoParquet.
//
//	geoexpr-eval -plan plan.yaml -in input.parquet -out result.parquet
package main

import (
	"context"
	"flag"
	"os"

	"geoexpr/pkg/config"
	"geoexpr/pkg/frame"
	"geoexpr/pkg/geoparquet"
	"geoexpr/pkg/plan"
	"geoexpr/pkg/projection"
	"geoexpr/pkg/st"

	"github.com/sirupsen/logrus"
)

func main() {
	planPath := flag.String("plan", "", "plan file, JSON or YAML")
	inPath := flag.String("in", "", "input GeoParquet file")
	outPath := flag.String("out", "", "output GeoParquet file")
	flag.Parse()

	if *planPath == "" || *inPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	cfg.ConfigureLogging()
	frame.SetParallelism(cfg.Parallelism)

	ctx := context.Background()
	if err := run(ctx, cfg, *planPath, *inPath, *outPath); err != nil {
		logrus.WithError(err).Fatal("evaluation failed")
	}
}

func run(ctx context.Context, cfg config.Config, planPath, inPath, outPath string) error {
	raw, err := os.ReadFile(planPath)
	if err != nil {
		return err
	}
	p, err := plan.Decode(raw)
	if err != nil {
		return err
	}

	if cfg.Reprojection {
		r, err := projection.New(ctx, projection.Options{ExtensionDir: cfg.ExtensionDir, Install: cfg.InstallSpatial})
		if err != nil {
			logrus.WithError(err).Warn("reprojection unavailable")
		} else {
			defer r.Close()
			st.SetReprojector(r)
		}
	}

	in, _, err := geoparquet.ReadFile(ctx, inPath)
	if err != nil {
		return err
	}
	defer in.Release()

	out, err := p.Run(ctx, in)
	if err != nil {
		return err
	}
	defer out.Release()

	if err := geoparquet.WriteFile(ctx, outPath, out); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"in": in.NumRows(), "out": out.NumRows(), "path": outPath}).Info("wrote result")
	return nil
}
