// Package simulate runs a monitoring session against a synthetic subject.
package simulate

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/vitalcam/vitalcam/internal/api"
	"github.com/vitalcam/vitalcam/internal/conf"
	"github.com/vitalcam/vitalcam/internal/logger"
	"github.com/vitalcam/vitalcam/internal/monitor"
	"github.com/vitalcam/vitalcam/internal/mqtt"
	"github.com/vitalcam/vitalcam/internal/observability"
	"github.com/vitalcam/vitalcam/internal/synth"
	"github.com/vitalcam/vitalcam/internal/vitals"
)

// GetLogger returns the simulate command logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("simulate")
}

// options are the synthetic subject and pacing flags.
type options struct {
	Duration   time.Duration
	FPS        int
	BPM        float64
	SpO2       float64
	Noise      float64
	Jitter     int
	Seed       uint64
	Realtime   bool
	AbsentFrom time.Duration
	AbsentFor  time.Duration
}

// Command creates the simulate command.
func Command(settings *conf.Settings) *cobra.Command {
	opts := options{}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Estimate vitals from a synthetic face video",
		Long: "Render frames of a synthetic subject with a known pulse and oxygen saturation, " +
			"run them through a monitoring session and report the averaged readings " +
			"on stdout and, when enabled, over MQTT and the HTTP API.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, opts)
		},
	}

	if err := setupFlags(cmd, settings, &opts); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
	}
	return cmd
}

// setupFlags configures flags specific to the simulate command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings, opts *options) error {
	cmd.Flags().DurationVar(&opts.Duration, "duration", time.Minute, "Simulated time to run, 0 runs until interrupted")
	cmd.Flags().IntVar(&opts.FPS, "fps", 30, "Frames per second")
	cmd.Flags().Float64Var(&opts.BPM, "bpm", 72, "Pulse of the synthetic subject")
	cmd.Flags().Float64Var(&opts.SpO2, "spo2", 96, "Oxygen saturation encoded in the subject's colour swings")
	cmd.Flags().Float64Var(&opts.Noise, "noise", 0, "Per-frame brightness noise (standard deviation, 8-bit units)")
	cmd.Flags().IntVar(&opts.Jitter, "jitter", 0, "Face box jitter in pixels")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "Random seed for noise and jitter")
	cmd.Flags().BoolVar(&opts.Realtime, "realtime", true, "Pace frames at wall-clock speed")
	cmd.Flags().DurationVar(&opts.AbsentFrom, "absent-from", 0, "Remove the face from view at this offset")
	cmd.Flags().DurationVar(&opts.AbsentFor, "absent-for", 0, "How long the face stays out of view")

	cmd.Flags().BoolVar(&settings.MQTT.Enabled, "mqtt", viper.GetBool("mqtt.enabled"), "Publish averaged readings over MQTT")
	cmd.Flags().DurationVar(&settings.MQTT.Interval, "interval", viper.GetDuration("mqtt.interval"), "Averaging and reporting period")
	cmd.Flags().BoolVar(&settings.WebServer.Enabled, "api", viper.GetBool("webserver.enabled"), "Serve the HTTP API")
	cmd.Flags().BoolVar(&settings.Telemetry.Enabled, "telemetry", viper.GetBool("telemetry.enabled"), "Enable Prometheus telemetry endpoint")

	if err := viper.BindPFlag("mqtt.enabled", cmd.Flags().Lookup("mqtt")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	if err := viper.BindPFlag("webserver.enabled", cmd.Flags().Lookup("api")); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}

func (o options) subjectOptions(settings *conf.Settings) []synth.Option {
	opts := []synth.Option{
		synth.WithHeartRate(o.BPM),
		synth.WithSpO2(o.SpO2, settings.Vitals.SpO2.CalibrationA, settings.Vitals.SpO2.CalibrationB),
		synth.WithNoise(o.Noise),
		synth.WithJitter(o.Jitter),
		synth.WithSeed(o.Seed),
	}
	if o.AbsentFor > 0 {
		opts = append(opts, synth.WithAbsence(o.AbsentFrom, o.AbsentFrom+o.AbsentFor))
	}
	return opts
}

// run wires a session to the optional outputs and feeds it until the
// duration elapses or ctx is cancelled.
func run(ctx context.Context, w io.Writer, settings *conf.Settings, opts options) error {
	log := GetLogger()
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	interval := settings.MQTT.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	registry := monitor.NewRegistry(monitor.ConfigFromSettings(&settings.Vitals), settings.Vitals.Session.Idle,
		monitor.WithSessionOptions(monitor.WithRecorder(m.Vitals)),
		monitor.WithActiveSessionsHook(m.Vitals.SetActiveSessions),
	)
	session, err := registry.Create()
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "session %s: subject at %.0f BPM, SpO2 %.1f%%\n", session.ID(), opts.BPM, opts.SpO2)

	source := &reportingSource{agg: session.Aggregator(), w: w, metrics: m}

	// build every output before starting goroutines so setup errors leave nothing running
	var client mqtt.Client
	if settings.MQTT.Enabled {
		if client, err = mqtt.NewClient(mqtt.ConfigFromSettings(settings), m.MQTT); err != nil {
			return err
		}
		defer client.Disconnect()
	}

	var server *api.Server
	if settings.WebServer.Enabled {
		if server, err = api.New(settings, registry, api.WithMetrics(m)); err != nil {
			return err
		}
	}

	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(settings, m)
		if err != nil {
			return err
		}
		var wg sync.WaitGroup
		quit := make(chan struct{})
		endpoint.Start(&wg, quit)
		defer func() {
			close(quit)
			wg.Wait()
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	f := &feeder{
		registry: registry,
		session:  session,
		subject:  synth.NewSubject(time.Now(), opts.subjectOptions(settings)...),
		opts:     opts,
	}
	if client == nil {
		f.report, f.interval = source, interval
	}
	g.Go(func() error {
		defer cancel()
		return f.run(gctx)
	})

	if client != nil {
		publisher := mqtt.NewReadingsPublisher(client, source, settings.MQTT.TopicPrefix, settings.Main.Name, interval)
		g.Go(func() error { return connectAndAnnounce(gctx, client, settings, interval) })
		g.Go(func() error { return publisher.Run(gctx) })
	}

	if server != nil {
		g.Go(func() error { return server.Run(gctx) })
	}

	err = g.Wait()
	printSummary(w, session.Snapshot())
	if err != nil {
		log.Error("simulation failed", logger.Error(err))
	}
	return err
}

// connectAndAnnounce connects the client, retrying until ctx ends, and then
// publishes the Home Assistant discovery configuration if enabled.
func connectAndAnnounce(ctx context.Context, client mqtt.Client, settings *conf.Settings, retry time.Duration) error {
	log := GetLogger()
	for {
		err := client.Connect(ctx)
		if err == nil {
			break
		}
		log.Warn("mqtt connect failed, retrying", logger.Error(err), logger.Duration("retry_in", retry))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(retry):
		}
	}

	if !settings.MQTT.Discovery.Enabled {
		return nil
	}
	p := mqtt.NewDiscoveryPublisher(client, &mqtt.DiscoveryConfig{
		DiscoveryPrefix: settings.MQTT.Discovery.Prefix,
		BaseTopic:       settings.MQTT.TopicPrefix,
		DeviceName:      "vitalcam " + settings.Main.Name,
		NodeID:          mqtt.SanitizeID(settings.Main.Name),
		Version:         settings.Version,
	})
	if err := p.PublishDiscovery(ctx); err != nil {
		log.Warn("failed to publish discovery configuration", logger.Error(err))
	}
	return nil
}

// feeder renders subject frames into a session.
type feeder struct {
	registry *monitor.Registry
	session  *monitor.Session
	subject  *synth.Subject
	opts     options

	// report, when set, is drained every interval of simulated time.
	report   mqtt.Source
	interval time.Duration
}

func (f *feeder) run(ctx context.Context) error {
	step := time.Second / time.Duration(f.opts.FPS)
	frames := -1
	if f.opts.Duration > 0 {
		frames = int(f.opts.Duration / step)
	}

	var tick <-chan time.Time
	if f.opts.Realtime {
		ticker := time.NewTicker(step)
		defer ticker.Stop()
		tick = ticker.C
	}

	start := f.subject.Start()
	lastReport := start
	for i := 0; frames < 0 || i < frames; i++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		ts := start.Add(time.Duration(i) * step)
		frame := f.subject.Render(ts)
		f.session.ProcessFrame(frame.At, frame.Image, frame.Face)

		if i%f.opts.FPS == 0 {
			f.registry.Touch(f.session.ID())
		}
		if f.report != nil && ts.Sub(lastReport) >= f.interval {
			f.report.Drain(ts)
			lastReport = ts
		}
	}
	return nil
}

// reportingSource prints every drained window and mirrors it into the reading gauges.
type reportingSource struct {
	agg     *monitor.Aggregator
	w       io.Writer
	metrics *observability.Metrics
	mu      sync.Mutex
}

// Drain implements mqtt.Source.
func (s *reportingSource) Drain(at time.Time) monitor.Averages {
	avg := s.agg.Drain(at)

	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "%s  %s\n", at.Format("15:04:05"), FormatAverages(avg))

	for vital, a := range map[string]monitor.Average{
		vitals.ProcessorHeartRate: avg.HeartRate,
		vitals.ProcessorStress:    avg.Stress,
		vitals.ProcessorSpO2:      avg.SpO2,
	} {
		if a.Valid() {
			s.metrics.Vitals.SetReading(vital, a.Value)
		} else {
			s.metrics.Vitals.ClearReading(vital)
		}
	}
	return avg
}

// FormatAverages renders one window as "HR: 72.0 BPM | Stress: 35.0 | SpO2: 96.0%",
// with "-" for vitals that had no value.
func FormatAverages(avg monitor.Averages) string {
	return fmt.Sprintf("HR: %s BPM | Stress: %s | SpO2: %s%%",
		oneDecimal(avg.HeartRate), oneDecimal(avg.Stress), oneDecimal(avg.SpO2))
}

func oneDecimal(a monitor.Average) string {
	if !a.Valid() {
		return "-"
	}
	return strconv.FormatFloat(a.Value, 'f', 1, 64)
}

func printSummary(w io.Writer, snap monitor.Snapshot) {
	fmt.Fprintf(w, "final: heart rate %.1f BPM (%s, confidence %d), stress %d %s (%s), SpO2 %.1f%% (%s, R %.3f)\n",
		snap.HeartRate.BPM, snap.HeartRate.Status, snap.HeartRate.Confidence,
		snap.Stress.StressIndex, snap.Stress.Level, snap.Stress.Status,
		snap.SpO2.SpO2, snap.SpO2.Status, snap.SpO2.RValue)
}
