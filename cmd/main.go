package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Yaowwwwww/clipgoal-ai/internal/log"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/api"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/clips"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/pipeline"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/video"
	"github.com/Yaowwwwww/clipgoal-ai/pkg/vision"
	"github.com/spf13/viper"
)

func main() {
	viper.AddConfigPath(".")
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("CLIPGOAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fatal("Could not read config file", err)
		}
	}
	log.Init(viper.GetString("log.level"))

	//create missing directories from config file, the data root included
	for _, dir := range viper.GetStringMapString("directory") {
		if err := os.MkdirAll(dir, 0766); err != nil {
			log.Error("Error creating directory", "dir", dir, "err", err)
		}
	}

	if viper.GetString("video.prod_format") == "" {
		fatal("Missing critical configurations", nil, "key", "video.prod_format")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := pipeline.LoadConfig(viper.GetViper())
	if err != nil {
		fatal("Invalid pipeline configuration", err)
	}
	p, err := pipeline.New(cfg)
	if err != nil {
		fatal("Could not build pipeline", err)
	}

	registryCfg := pipeline.DefaultRegistryConfig()
	if err := viper.UnmarshalKey("session", &registryCfg); err != nil {
		fatal("Invalid session configuration", err)
	}
	sessions := pipeline.NewRegistry(registryCfg, cfg.HistoryLength)
	go sessions.Run(ctx, time.Minute)

	clipsCfg := clips.DefaultConfig()
	if err := viper.UnmarshalKey("clips", &clipsCfg); err != nil {
		fatal("Invalid clips configuration", err)
	}
	store, err := clips.Open(clipsCfg)
	if err != nil {
		fatal("Could not open clip store", err)
	}
	defer store.Close()
	recorder := clips.NewRecorder(store, clipsCfg)

	server := &api.Server{
		Pipeline:   p,
		Sessions:   sessions,
		Recorder:   recorder,
		SourceDir:  viper.GetString("directory.source"),
		ReadyDir:   viper.GetString("directory.ready"),
		ProdFormat: viper.GetString("video.prod_format"),
		StaticPath: viper.GetString("frontend.static-files-path"),
	}

	if viper.GetString("detector.model") != "" {
		yoloCfg := vision.DefaultYOLOConfig()
		if err := viper.UnmarshalKey("detector", &yoloCfg); err != nil {
			fatal("Invalid detector configuration", err)
		}
		detector, err := vision.NewYOLODetector(yoloCfg)
		if err != nil {
			fatal("Could not load detector model", err)
		}
		defer detector.Close()
		server.Detector = detector
		log.Info("Detector loaded", "model", yoloCfg.ModelPath)
	} else {
		log.Warn("No detector model configured, clients must send proposals")
	}

	server.Tagger = &video.Tagger{
		Pipeline:        p,
		Recorder:        recorder,
		Detector:        server.Detector,
		DetectorCommand: viper.GetString("detector.command"),
		SourceDir:       server.SourceDir,
		ReadyDir:        server.ReadyDir,
		TempDir:         viper.GetString("directory.temp"),
		ProdFormat:      server.ProdFormat,
	}

	r := server.SetRouter(ctx)
	log.Info("Listening", "port", viper.GetString("http.port"), "clips", clipsCfg.Driver)
	if err := r.Run(":" + viper.GetString("http.port")); err != nil {
		fatal("Server stopped", err)
	}
}

func setDefaults() {
	viper.SetDefault("http.port", "8080")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("directory.root", "data")
	viper.SetDefault("directory.source", "data/uploads")
	viper.SetDefault("directory.ready", "data/ready")
	viper.SetDefault("directory.temp", "data/tmp")
	viper.SetDefault("video.prod_format", "mp4")
}

func fatal(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "err", err)
	}
	log.Error(msg, args...)
	os.Exit(1)
}
