package main

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"

	"github.com/dosco/pipejin/serv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// These variables are set using -ldflags
	version string
	commit  string
	date    string
)

var (
	log   *zap.SugaredLogger
	conf  *serv.Config
	cpath string
)

// Cmd is the entry point for the CLI
func Cmd() {
	log = newLogger(false).Sugar()
	serv.SetVersion(version)

	cobra.EnableCommandSorting = false
	rootCmd := &cobra.Command{
		Use:   "pipejin",
		Short: BuildDetails(),
	}

	rootCmd.PersistentFlags().StringVar(&cpath,
		"path", "./config", "path to config files")

	// Add --config as an alias for --path
	rootCmd.PersistentFlags().StringVar(&cpath,
		"config", "./config", "alias for --path")
	rootCmd.PersistentFlags().MarkHidden("config") //nolint:errcheck

	rootCmd.AddCommand(newCmd())
	rootCmd.AddCommand(servCmd())
	rootCmd.AddCommand(lambdaCmd())
	rootCmd.AddCommand(compileCmd())
	rootCmd.AddCommand(shapeCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("%s", err)
	}
}

// setup is a helper function to read the config file
func setup(cpath string) {
	if conf != nil {
		return
	}

	cp, err := filepath.Abs(cpath)
	if err != nil {
		log.Fatal(err)
	}

	if conf, err = serv.ReadInConfig(path.Join(cp, serv.GetConfigName())); err != nil {
		log.Fatal(err)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version and build details",
		Run: func(*cobra.Command, []string) {
			fmt.Println(BuildDetails())
		},
	}
}

// BuildDetails returns the version, commit and build date
func BuildDetails() string {
	if version == "" {
		return "PipeJin (unknown version)"
	}
	return fmt.Sprintf("PipeJin %s (%s) built %s with %s", version, commit, date, runtime.Version())
}

// newLogger creates a new logger
func newLogger(json bool) *zap.Logger {
	return newLoggerWithOutput(json, os.Stdout)
}

// newLoggerWithOutput creates a new logger with a custom output
func newLoggerWithOutput(json bool, output zapcore.WriteSyncer) *zap.Logger {
	econf := zapcore.EncoderConfig{
		MessageKey:     "msg",
		LevelKey:       "level",
		NameKey:        "logger",
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}

	var core zapcore.Core

	if json {
		core = zapcore.NewCore(zapcore.NewJSONEncoder(econf), output, zap.DebugLevel)
	} else {
		econf.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core = zapcore.NewCore(zapcore.NewConsoleEncoder(econf), output, zap.DebugLevel)
	}
	return zap.New(core)
}
