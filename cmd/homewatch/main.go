// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

//go:build linux

// Package main implements the homewatch presence service.
package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/wneessen/homewatch/internal/config"
	"github.com/wneessen/homewatch/internal/i18n"
	"github.com/wneessen/homewatch/internal/logger"
	"github.com/wneessen/homewatch/internal/service"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGABRT, os.Interrupt)
	defer cancel()

	// Initialize Logger
	log := logger.New(slog.LevelError)

	confRead := false
	confPath := flag.String("config", "", "path to the config file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with HOMEWATCH_* variables")
	flag.Parse()

	// Secrets like database or SMTP passwords usually live in the environment
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("failed to load env file", slog.String("path", *envFile), logger.Err(err))
		os.Exit(1)
	}

	// Read default config
	conf, err := config.New()
	if err != nil && *confPath == "" {
		if path, file := findConfigFile(); path == "" || file == "" {
			log.Error("failed to load config", logger.Err(err))
			os.Exit(1)
		}
	}

	// If config file was specified, read it
	if *confPath != "" {
		file := filepath.Base(*confPath)
		path := filepath.Dir(*confPath)
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
		confRead = true
	}

	// Check if we have a config file in the default location
	if path, file := findConfigFile(); !confRead && (path != "" && file != "") {
		conf, err = config.NewFromFile(path, file)
		if err != nil {
			log.Error("failed to load config from file", logger.Err(err))
			os.Exit(1)
		}
	}

	var logCloser io.Closer
	log = logger.New(conf.LogLevel)
	if conf.Logging.File != "" {
		log, logCloser = logger.NewWithFile(conf.LogLevel, logger.FileOptions{
			Path:       conf.Logging.File,
			MaxSizeMB:  conf.Logging.MaxSizeMB,
			MaxBackups: conf.Logging.MaxBackups,
			MaxAgeDays: conf.Logging.MaxAgeDays,
		})
	}
	t, err := i18n.New(conf.Locale)
	if err != nil {
		log.Error("failed to initialize localizer", logger.Err(err))
		os.Exit(1)
	}

	// Initialize the service
	serv, err := service.New(conf, log, t)
	if err != nil {
		log.Error("failed to initialize homewatch service", logger.Err(err))
		os.Exit(1)
	}

	// SIGUSR1 polls immediately, SIGUSR2 logs the current status
	sigChan := make(chan os.Signal, 1)
	serv.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer serv.SignalSrc.Stop(sigChan)
		serv.HandleSignals(ctx, sigChan)
	}()

	// Start the service loop
	log.Info(t.Get("starting homewatch service"), slog.String("version", version),
		slog.String("commit", commit), slog.String("date", date), slog.String("device", conf.Device.Name))
	if err = serv.Run(ctx); err != nil {
		log.Error("failed to start homewatch service", logger.Err(err))
	}
	log.Info(t.Get("shutting down homewatch service"))
	if logCloser != nil {
		_ = logCloser.Close()
	}
}

func findConfigFile() (string, string) {
	homedir, err := os.UserHomeDir()
	if err != nil {
		return "", ""
	}
	exts := []string{"toml", "yaml", "yml", "json"}
	for _, ext := range exts {
		path := filepath.Join(homedir, ".config", "homewatch", "config."+ext)
		if _, err = os.Stat(path); err == nil {
			return filepath.Dir(path), filepath.Base(path)
		}
	}
	return "", ""
}
