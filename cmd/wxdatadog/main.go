package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chrissnell/wxdatadog/internal/app"
	"github.com/chrissnell/wxdatadog/internal/constants"
	"github.com/chrissnell/wxdatadog/internal/log"
	"github.com/chrissnell/wxdatadog/pkg/config"
	"github.com/spf13/pflag"
)

func main() {
	cfgFile := pflag.StringP("config", "c", "config.yaml", "Path to the YAML configuration file")
	debug := pflag.BoolP("debug", "d", false, "Turn on debugging output")
	showVersion := pflag.Bool("version", false, "Show version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("wxdatadog %s\n", constants.Version)
		os.Exit(0)
	}

	filename, _ := filepath.Abs(*cfgFile)
	provider := config.NewYAMLProvider(filename)

	// The log section has to be read before the logger exists.
	cfgData, err := provider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config file. Did you pass the --config flag? Run with -h for help: %v\n", err)
		os.Exit(1)
	}

	// Set up logging
	err = log.Init(*debug || cfgData.Debug, log.FileConfig{
		Path:       cfgData.Log.File,
		MaxSizeMB:  cfgData.Log.MaxSizeMB,
		MaxBackups: cfgData.Log.MaxBackups,
		MaxAgeDays: cfgData.Log.MaxAgeDays,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	application := app.New(provider, log.GetSugaredLogger())
	if err := application.Run(context.Background()); err != nil {
		log.Errorf("Application error: %v", err)
		log.Sync()
		os.Exit(1)
	}
}
