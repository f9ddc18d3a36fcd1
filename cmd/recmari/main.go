// Package main provides the CLI entry point for recmari.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/ideamans/go-l10n"

	"github.com/palthedog/recmari/pkg/adapters/ffmpegsource"
	"github.com/palthedog/recmari/pkg/adapters/filesink"
	"github.com/palthedog/recmari/pkg/adapters/ggoverlay"
	"github.com/palthedog/recmari/pkg/adapters/jsonsink"
	"github.com/palthedog/recmari/pkg/adapters/logger"
	"github.com/palthedog/recmari/pkg/adapters/nullsink"
	"github.com/palthedog/recmari/pkg/adapters/osfilesystem"
	"github.com/palthedog/recmari/pkg/config"
	"github.com/palthedog/recmari/pkg/orchestrator"
	"github.com/palthedog/recmari/pkg/pipeline"
	"github.com/palthedog/recmari/pkg/ports"
	"github.com/palthedog/recmari/pkg/stages/aggregate"
	"github.com/palthedog/recmari/pkg/stages/detect"
	"github.com/palthedog/recmari/pkg/stages/region"
	"github.com/palthedog/recmari/pkg/stages/track"
)

// CLI defines the command-line interface with subcommands.
type CLI struct {
	Analyze AnalyzeCmd `cmd:"" help:"Analyze a recorded match video."`
	Probe   ProbeCmd   `cmd:"" help:"Print video stream metadata."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// AnalyzeCmd defines the analyze subcommand.
type AnalyzeCmd struct {
	// Required arguments
	Input  string `arg:"" help:"Path to the input video file."`
	Output string `short:"o" default:"./out" help:"Directory for match JSON output."`

	// Calibration
	Config string `short:"c" help:"Calibration YAML file (defaults to the built-in preset)."`

	// Sampling (override config file)
	Stride     *int `short:"s" help:"Analyze every Nth decoded frame."`
	StartFrame *int `help:"First decoded frame to consider."`
	MaxFrames  *int `help:"Maximum number of sampled frames (0 = no limit)."`

	// Tracking
	MatchGapSec *float64 `help:"Seconds of silence between readings that closes a match."`

	// Tooling
	FFmpegPath  string `help:"Path to the ffmpeg executable."`
	FFprobePath string `help:"Path to the ffprobe executable."`

	// Debug options
	Debug        bool    `short:"d" help:"Enable debug output (overlay frames, readings)."`
	DebugDir     string  `default:"./debug" help:"Directory for debug output."`
	OverlayScale float64 `default:"0.5" help:"Scale factor for saved overlay frames."`

	// Logging options
	LogLevel string `short:"l" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)."`
	Quiet    bool   `short:"Q" help:"Suppress all log output."`
}

// ProbeCmd defines the probe subcommand.
type ProbeCmd struct {
	Input       string `arg:"" help:"Path to the input video file."`
	FFprobePath string `help:"Path to the ffprobe executable."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

var version = "dev"

func main() {
	cli := CLI{}

	ctx := kong.Parse(&cli,
		kong.Name("recmari"),
		kong.Description("Segment recorded fighting-game videos into rounds and matches."),
		kong.UsageOnError(),
	)

	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

// Run executes the analyze command.
func (cmd *AnalyzeCmd) Run() error {
	cfg, err := cmd.buildConfig()
	if err != nil {
		return err
	}

	// Create logger
	var log ports.Logger
	if cmd.Quiet {
		log = logger.NewNoop()
	} else {
		log = logger.NewConsole(ports.ParseLogLevel(cmd.LogLevel))
	}

	// Fail fast on bad calibration before anything is opened.
	if err := cfg.Validate(); err != nil {
		log.Error(l10n.F("Invalid configuration: %s", err))
		return err
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Warn(l10n.T("Interrupted, shutting down..."))
		cancel()
	}()

	// Create adapters
	fs := osfilesystem.New()

	var sink ports.DebugSink
	var overlay ports.OverlayRenderer
	if cmd.Debug {
		if err := fs.MkdirAll(cmd.DebugDir); err != nil {
			return fmt.Errorf("create debug directory: %w", err)
		}
		sink = filesink.New(cmd.DebugDir, fs)
		overlay = ggoverlay.New(cmd.OverlayScale)
	} else {
		sink = nullsink.New()
	}

	source, err := ffmpegsource.Open(cmd.Input, ffmpegsource.Options{
		Stride:      cfg.Sampling.Stride,
		StartFrame:  cfg.Sampling.StartFrame,
		MaxFrames:   cfg.Sampling.MaxFrames,
		FFmpegPath:  cmd.FFmpegPath,
		FFprobePath: cmd.FFprobePath,
	}, log)
	if err != nil {
		log.Error(l10n.F("Failed to open video: %s", err))
		return err
	}
	defer source.Close()

	info := source.Info()
	log.Info(l10n.F("Video opened: %dx%d @ %.2f fps", info.Width, info.Height, info.FPS))

	// Create stages
	regionStage, err := region.NewStage(cfg.Calibration.P1Region.ToRect(), cfg.Calibration.P2Region.ToRect())
	if err != nil {
		return err
	}
	detectCfg, err := cfg.ToDetectConfig()
	if err != nil {
		return err
	}
	detectStage := detect.NewStage(detectCfg, log)
	trackStage := track.NewStage(cfg.ToTrackConfig(), log)
	aggregateStage := aggregate.NewStage(pipeline.SourceMetadata{
		FilePath:     cmd.Input,
		SampleStride: cfg.Sampling.Stride,
	}, log)

	matches := jsonsink.New(cmd.Output, fs, log)

	// Create orchestrator
	orch := orchestrator.New(
		regionStage,
		detectStage,
		trackStage,
		aggregateStage,
		matches,
		overlay,
		sink,
		log,
	)

	log.Info(l10n.F("Analyzing %s (title: %s, stride %d)...", cmd.Input, cfg.Calibration.Title, cfg.Sampling.Stride))

	result, err := orch.Run(ctx, source)
	if err != nil {
		return err
	}

	log.Info(l10n.F("Wrote %d matches (%d rounds) to %s", result.Matches, result.Rounds, cmd.Output))
	return nil
}

// buildConfig loads the config file (or defaults) and applies CLI overrides.
func (cmd *AnalyzeCmd) buildConfig() (config.Config, error) {
	cfg := config.Defaults()
	if cmd.Config != "" {
		loaded, err := config.LoadFromFile(cmd.Config)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Stride != nil {
		cfg.Sampling.Stride = *cmd.Stride
	}
	if cmd.StartFrame != nil {
		cfg.Sampling.StartFrame = *cmd.StartFrame
	}
	if cmd.MaxFrames != nil {
		cfg.Sampling.MaxFrames = *cmd.MaxFrames
	}
	if cmd.MatchGapSec != nil {
		cfg.Tracking.MatchGapSeconds = *cmd.MatchGapSec
	}
	if cmd.Debug {
		cfg.Debug = true
		cfg.DebugDir = cmd.DebugDir
	}

	return cfg, nil
}

// Run executes the probe command.
func (cmd *ProbeCmd) Run() error {
	info, err := ffmpegsource.Probe(cmd.Input, cmd.FFprobePath)
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("Resolution: %dx%d", info.Width, info.Height))
	fmt.Println(l10n.F("Frame rate: %.3f fps", info.FPS))
	if info.FrameCount > 0 {
		fmt.Println(l10n.F("Frames: %d", info.FrameCount))
		if info.FPS > 0 {
			d := time.Duration(float64(info.FrameCount) / info.FPS * float64(time.Second))
			fmt.Println(l10n.F("Duration: %s", d.Round(time.Millisecond)))
		}
	}
	return nil
}

// Run executes the version command.
func (cmd *VersionCmd) Run() error {
	fmt.Println(l10n.F("recmari version %s", version))
	return nil
}
