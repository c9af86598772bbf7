// Livecast, a broadcast audio dispatch engine.
//
// Usage:
//
//	livecast [-verbose] [-quiet]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/solenne/livecast/internal/audio"
	"github.com/solenne/livecast/internal/config"
	"github.com/solenne/livecast/internal/domain"
	"github.com/solenne/livecast/internal/gate"
	"github.com/solenne/livecast/internal/logger"
	"github.com/solenne/livecast/internal/match"
	"github.com/solenne/livecast/internal/remote"
	"github.com/solenne/livecast/internal/state"
	"github.com/solenne/livecast/internal/tts"
)

func main() {
	_ = godotenv.Load()

	verbose := flag.Bool("verbose", false, "enable verbose/debug logging")
	quiet := flag.Bool("quiet", false, "disable all logging")
	logFile := flag.String("log-file", "", "file to write logs to (default: stderr)")
	flag.Parse()

	// Configure logger.
	logLevel := logger.LevelNormal
	if *verbose {
		logLevel = logger.LevelVerbose
	}
	if *quiet {
		logLevel = logger.LevelOff
	}

	var logOut io.Writer = os.Stderr
	if *logFile != "" && *logFile != "stderr" {
		if dir := filepath.Dir(*logFile); dir != "" && dir != "." {
			os.MkdirAll(dir, 0o755)
		}
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not open log file %s: %v (falling back to stderr)\n", *logFile, err)
		} else {
			logOut = f
			defer f.Close()
		}
	}

	// Third-party libs log through the default logger; keep it on the
	// same output.
	stdlog.SetOutput(logOut)
	stdlog.SetFlags(stdlog.Ltime)

	log := logger.New(logLevel, logOut)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if cfg.Verbose {
		log.SetLevel(logger.LevelVerbose)
	}
	runtimeState := config.LoadRuntimeState(cfg.StateFile)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Validate the license before bringing anything up.
	license := tts.NewLicenseClient(cfg.APIBaseURL, log)
	verdict, err := license.Login(ctx, cfg.LicenseKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: license check failed: %v\n", err)
		os.Exit(1)
	}
	if !verdict.OK() {
		fmt.Fprintf(os.Stderr, "error: license rejected: %s\n", verdict.Msg)
		os.Exit(1)
	}
	log.Info("license accepted")

	// Shared runtime flags.
	shared := state.New()
	shared.SetAutoReply(runtimeState.EnableAutoReply)
	shared.SetReplyAudio(runtimeState.EnableReplyAudio)

	// Audio output.
	player, err := audio.NewPlayer(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: audio device init failed: %v\n", err)
		os.Exit(1)
	}

	picker := audio.NewPrefixPicker(cfg.AssetDir)
	dispatcher := audio.NewDispatcher(player, shared, log,
		audio.WithEventAudio(picker, cfg.FollowPrefix, cfg.LikePrefix),
	)

	rotation := audio.NewFolderRotation(cfg.RotationDir, log)
	rotationLoop := audio.NewRotationLoop(rotation, dispatcher, shared, log, 0)

	// Speech synthesis and the time reporter.
	cache := tts.NewCache(cfg.CacheDir, cfg.VoiceModelID, log)
	synth := tts.NewClient(cfg.APIBaseURL, cfg.LicenseKey, cfg.VoiceModelID, cache, log)
	reporter := audio.NewReporter(dispatcher, synth, shared, log,
		time.Duration(runtimeState.ReportIntervalMinutes)*time.Minute)
	reporter.SetEnabled(runtimeState.EnableVoiceReport)

	// Keyword rules.
	rulesStore := match.NewFileStore(cfg.RulesFile, log)
	rules, err := rulesStore.Load()
	if err != nil {
		log.Error("loading keyword rules: %v", err)
	}
	engine := match.NewEngine(rules, log)
	log.Info("keyword rules loaded: %d", len(engine.Rules()))

	cooldown := gate.New(log)

	// Channel and router reference each other: the channel feeds the
	// router inbound commands, the router pushes status back out.
	var router *remote.Router
	channel := remote.NewChannel(cfg.WSURL, cfg.LicenseKey, func(cmd domain.RemoteCommand) {
		router.Handle(ctx, cmd)
	}, log)

	// The comment pipeline: every real comment proves the stream is
	// live, gets mirrored to the control service, and may trigger the
	// keyword audio insert plus a per-user cooldown-gated reply text.
	responder := remote.NewResponder(engine, picker, dispatcher, shared, cooldown, channel,
		cfg.ReplyWindow, log)

	os.MkdirAll(cfg.RecordingDir, 0o755)
	router = remote.NewRouter(dispatcher, picker, shared, cooldown, reporter, channel, responder.OnComment, log,
		remote.WithEventWindow(cfg.EventWindow),
		remote.WithRecordingDir(cfg.RecordingDir),
		remote.WithFFmpeg(cfg.FFmpegPath),
	)

	// Bring the loops up.
	dispatcher.Start(ctx)
	defer dispatcher.Stop()
	go rotationLoop.Run(ctx)
	go reporter.Run(ctx)
	go channel.Run(ctx)

	log.Info("livecast running (assets=%s, rotation=%s)", cfg.AssetDir, cfg.RotationDir)

	<-ctx.Done()
	log.Info("shutting down")

	runtimeState.EnableVoiceReport = reporter.Enabled()
	runtimeState.ReportIntervalMinutes = int(reporter.Interval() / time.Minute)
	runtimeState.EnableAutoReply = shared.AutoReply()
	runtimeState.EnableReplyAudio = shared.ReplyAudio()
	if err := config.SaveRuntimeState(cfg.StateFile, runtimeState); err != nil {
		log.Error("saving runtime state: %v", err)
	}
}
