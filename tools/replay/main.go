package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldstorage/internal/anomaly/application"
	"coldstorage/internal/anomaly/infrastructure/memory"
	"coldstorage/internal/anomaly/interfaces/export"
	"coldstorage/internal/config"
	telemetry "coldstorage/internal/telemetry/domain"
	"coldstorage/internal/telemetry/infrastructure/dtapi"
	"coldstorage/internal/telemetry/infrastructure/fileimport"
)

const timeLayout = time.RFC3339

type options struct {
	path     string
	start    time.Time
	end      time.Time
	sensor   string
	plotPath string
	xlsxPath string
}

type transitionPrinter struct {
	out io.Writer
}

func (p transitionPrinter) Notify(_ context.Context, event application.AlertEvent) {
	fmt.Fprintf(p.out, "%s %-8s %-24s %-8s value=%.2f band=[%.2f, %.2f] over_limit=%t\n",
		event.SampleAt.Format(timeLayout), event.Type, event.SensorID, event.Classification,
		event.Value, event.Lower, event.Upper, event.OverLimit)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events, err := loadEvents(ctx, cfg, opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load events:", err)
		os.Exit(1)
	}

	alerts := memory.NewAlertRepository()
	director, err := application.NewDirector(cfg.Engine,
		application.WithAlertStore(alerts),
		application.WithNotifier(transitionPrinter{out: os.Stdout}),
		application.WithStorageMaxTemp(cfg.StorageMaxTemp),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "director:", err)
		os.Exit(2)
	}

	res, err := director.Replay(ctx, events)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("\nreplayed %d events: %d accepted, %d rejected, %d ignored\n", len(events), res.Accepted, res.Rejected, res.Ignored)
	for _, s := range director.Sensors() {
		line := fmt.Sprintf("-- %-30s state=%-8s samples=%d", s.ID, s.State, s.SampleCount)
		if s.LatestBound != nil && !s.LatestBound.Placeholder {
			line += fmt.Sprintf(" band=[%.2f, %.2f]", s.LatestBound.Lower, s.LatestBound.Upper)
		}
		fmt.Println(line)
	}

	if opts.plotPath == "" && opts.xlsxPath == "" {
		return
	}
	report, err := buildReport(ctx, director, alerts, cfg, opts.sensor)
	if err != nil {
		fmt.Fprintln(os.Stderr, "report:", err)
		os.Exit(1)
	}
	if opts.plotPath != "" {
		payload, err := export.RenderPlotPNG(report, 0, 0)
		if err == nil {
			err = os.WriteFile(opts.plotPath, payload, 0o644)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "plot:", err)
			os.Exit(1)
		}
		fmt.Println("plot written to", opts.plotPath)
	}
	if opts.xlsxPath != "" {
		payload, err := export.BuildSensorXLSX(report)
		if err == nil {
			err = os.WriteFile(opts.xlsxPath, payload, 0o644)
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "xlsx:", err)
			os.Exit(1)
		}
		fmt.Println("report written to", opts.xlsxPath)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	var opts options
	var start, end string
	fs.StringVar(&opts.path, "path", "", "CSV or XLSX recording with unix_time and temperature columns")
	fs.StringVar(&start, "start", "", "DT history start (RFC3339)")
	fs.StringVar(&end, "end", "", "DT history end (RFC3339), default now")
	fs.StringVar(&opts.sensor, "sensor", "", "sensor for -plot and -xlsx, default the first one")
	fs.StringVar(&opts.plotPath, "plot", "", "write a PNG plot to this path")
	fs.StringVar(&opts.xlsxPath, "xlsx", "", "write an XLSX report to this path")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	var err error
	if start != "" {
		if opts.start, err = time.Parse(timeLayout, start); err != nil {
			return options{}, fmt.Errorf("invalid -start: %w", err)
		}
	}
	if end != "" {
		if opts.end, err = time.Parse(timeLayout, end); err != nil {
			return options{}, fmt.Errorf("invalid -end: %w", err)
		}
	}
	if opts.path != "" && (start != "" || end != "") {
		return options{}, errors.New("-path cannot be combined with -start/-end")
	}
	if opts.path == "" && start == "" {
		return options{}, errors.New("either -path or -start is required")
	}
	if !opts.start.IsZero() && !opts.end.IsZero() && opts.end.Before(opts.start) {
		return options{}, errors.New("-end precedes -start")
	}
	return opts, nil
}

func loadEvents(ctx context.Context, cfg config.Config, opts options) ([]telemetry.Event, error) {
	if opts.path != "" {
		return fileimport.NewImporter(telemetry.LocalFileDevice, nil).ImportFile(opts.path)
	}
	if !cfg.DT.Enabled() {
		return nil, errors.New("DT_PROJECT_ID, DT_API_KEY_ID and DT_API_SECRET are required for history replay")
	}
	client, err := dtapi.NewClient(cfg.DT.BaseURL, cfg.DT.ProjectID, cfg.DT.KeyID, cfg.DT.Secret)
	if err != nil {
		return nil, err
	}
	devices, err := client.ListTemperatureDevices(ctx)
	if err != nil {
		return nil, err
	}
	end := opts.end
	if end.IsZero() {
		end = time.Now().UTC()
	}
	return client.ProjectHistory(ctx, devices, opts.start, end)
}

func buildReport(ctx context.Context, director *application.Director, alerts application.AlertReader, cfg config.Config, sensorID string) (export.Report, error) {
	if sensorID == "" {
		sensors := director.Sensors()
		if len(sensors) == 0 {
			return export.Report{}, export.ErrNoSamples
		}
		sensorID = sensors[0].ID
	}
	snap, err := director.Snapshot(sensorID)
	if err != nil {
		return export.Report{}, err
	}
	list, err := alerts.List(ctx, application.AlertQuery{SensorID: sensorID})
	if err != nil {
		return export.Report{}, err
	}
	return export.Report{
		SensorID:    sensorID,
		Config:      cfg.Engine,
		MaxTemp:     cfg.StorageMaxTemp,
		Snapshot:    snap,
		Alerts:      list,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
