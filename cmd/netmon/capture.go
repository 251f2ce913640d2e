package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"netmon/internal/hotreload"
	"netmon/pkg/api"
	"netmon/pkg/config"
	"netmon/pkg/export"
	"netmon/pkg/monitor"
	"netmon/pkg/profile"
)

func newCaptureCommand(ctx context.Context, logger *zap.Logger) *cobra.Command {
	var (
		configFile   string
		profilesFile string
		openapiSpec  string
		exportDir    string
		method       string
		serve        bool
	)

	cmd := &cobra.Command{
		Use:   "capture [url...]",
		Short: "Capture HTTP traffic through the monitor",
		Long: `Issue the given requests through an intercepting client, record how
each one concluded, and optionally serve configured mock profiles in
place of the network. With --serve the command keeps running after the
capture so the inspection endpoints stay available.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfiguration(configFile)
			if err != nil {
				return err
			}

			// Flags override the configuration file.
			if profilesFile != "" {
				cfg.Monitor.ProfilesFile = profilesFile
			}
			if openapiSpec != "" {
				cfg.Monitor.OpenAPISpec = openapiSpec
			}
			if exportDir != "" {
				cfg.Export.Enabled = true
				cfg.Export.Directory = exportDir
			}

			log, err := buildLogger(&cfg.Logging)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			defer log.Sync()

			return runCapture(ctx, cfg, args, method, serve, log)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVarP(&profilesFile, "profiles", "p", "", "Path to a YAML/JSON profile set")
	cmd.Flags().StringVarP(&openapiSpec, "openapi", "s", "", "Derive profiles from an OpenAPI 3 document")
	cmd.Flags().StringVarP(&exportDir, "export-dir", "o", "", "Export captured records to this directory")
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method for captured requests")
	cmd.Flags().BoolVar(&serve, "serve", false, "Keep running after the capture completes")

	return cmd
}

func runCapture(ctx context.Context, cfg *config.Config, urls []string, method string, serve bool, log *zap.Logger) error {
	opts := []monitor.Option{}

	var exporter *export.FileExporter
	if cfg.Export.Enabled {
		var err error
		exporter, err = export.NewFileExporter(&cfg.Export, log)
		if err != nil {
			return fmt.Errorf("failed to create exporter: %w", err)
		}
		opts = append(opts, monitor.WithExporter(exporter))
	}

	mon := monitor.New(log, opts...)
	mon.ConfigureIgnoredDomains(cfg.Monitor.IgnoredDomains)
	mon.RecordMediaPayload(cfg.Monitor.RecordMediaPayload)
	mon.SetPassiveExport(cfg.Export.Enabled)

	profiles, err := loadProfiles(&cfg.Monitor)
	if err != nil {
		return err
	}
	if len(profiles) > 0 {
		if err := mon.Configure(profiles); err != nil {
			return err
		}
		log.Info("Profiles configured", zap.Int("count", len(profiles)))
	}

	if cfg.HotReload.Enabled && cfg.Monitor.ProfilesFile != "" {
		reloader, err := hotreload.NewProfileReloader(mon, cfg.Monitor.ProfilesFile, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to create profile reloader: %w", err)
		}
		if err := reloader.Start(); err != nil {
			return fmt.Errorf("failed to start profile reloader: %w", err)
		}
		defer reloader.Stop()
	}

	if cfg.Inspector.Enabled {
		inspector, err := api.NewServer(&cfg.Inspector, mon, log)
		if err != nil {
			return fmt.Errorf("failed to create inspector: %w", err)
		}
		go func() {
			if err := inspector.Start(); err != nil {
				log.Error("Inspector stopped", zap.Error(err))
			}
		}()
		defer inspector.Shutdown()
	}

	mon.StartMonitoring()
	defer mon.StopMonitoring()

	if err := issueRequests(ctx, mon, &cfg.Capture, urls, method, log); err != nil {
		return err
	}

	if exporter != nil {
		if err := mon.ExportRecordData(); err != nil {
			log.Warn("Export failed", zap.Error(err))
		}
		exporter.Flush()
	}

	printSummary(mon)

	if serve {
		log.Info("Capture complete, serving until interrupted")
		<-ctx.Done()
	}

	return nil
}

// issueRequests dispatches the capture requests through the monitored
// client, paced by the configured rate limit and bounded by the configured
// concurrency.
func issueRequests(ctx context.Context, mon *monitor.Monitor, cfg *config.CaptureConfig, urls []string, method string, log *zap.Logger) error {
	client := mon.Client()
	client.Timeout = cfg.Timeout

	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	sem := make(chan struct{}, cfg.Concurrency)

	var wg sync.WaitGroup
	for _, url := range urls {
		if err := limiter.Wait(ctx); err != nil {
			wg.Wait()
			return err
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(url string) {
			defer wg.Done()
			defer func() { <-sem }()

			req, err := http.NewRequestWithContext(ctx, method, url, nil)
			if err != nil {
				log.Warn("Skipping invalid URL", zap.String("url", url), zap.Error(err))
				return
			}

			resp, err := client.Do(req)
			if err != nil {
				log.Warn("Request failed", zap.String("url", url), zap.Error(err))
				return
			}
			defer resp.Body.Close()

			// Drain so the record concludes with the full payload size.
			if _, err := io.Copy(io.Discard, resp.Body); err != nil {
				log.Warn("Failed to read response body", zap.String("url", url), zap.Error(err))
			}
		}(url)
	}

	wg.Wait()
	return nil
}

func printSummary(mon *monitor.Monitor) {
	records := mon.Records()

	fmt.Printf("Captured %d requests (sent %d bytes, received %d bytes)\n",
		len(records), mon.TotalRequestSize(), mon.TotalResponseSize())

	for _, record := range records {
		conclusion := "In Flight"
		if record.Conclusion != nil {
			conclusion = record.Conclusion.DisplayRepresentation()
		}

		method, url := "", ""
		if record.Request != nil {
			method = record.Request.Method
			url = record.Request.URL
		}

		fmt.Printf("  %-6s %-60s %s\n", method, url, conclusion)
	}
}

func loadConfiguration(configFile string) (*config.Config, error) {
	cfg := config.Default()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	}

	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadProfiles gathers the startup profile set from the configured profile
// file and OpenAPI document.
func loadProfiles(cfg *config.MonitorConfig) ([]*profile.Profile, error) {
	var profiles []*profile.Profile

	if cfg.ProfilesFile != "" {
		loaded, err := profile.LoadFile(cfg.ProfilesFile, cfg.Seed)
		if err != nil {
			return nil, fmt.Errorf("failed to load profiles: %w", err)
		}
		profiles = append(profiles, loaded...)
	}

	if cfg.OpenAPISpec != "" {
		derived, err := profile.FromOpenAPI(cfg.OpenAPISpec)
		if err != nil {
			return nil, fmt.Errorf("failed to derive profiles from OpenAPI spec: %w", err)
		}
		profiles = append(profiles, derived...)
	}

	return profiles, nil
}
