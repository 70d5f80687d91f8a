package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/platform"
)

// rootOptions holds the persistent flags and what PersistentPreRunE builds
// from them.
type rootOptions struct {
	verbose    bool
	json       bool
	configPath string

	logger logging.Logger
	sync   func()
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{logger: logging.Nop(), sync: func() {}}

	root := &cobra.Command{
		Use:           "toolkeeper",
		Short:         "Run an external modding tool with a switchable console encoding",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, sync, err := logging.New(logging.Options{Verbose: opts.verbose, JSON: opts.json})
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			opts.logger, opts.sync = logger, sync
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			opts.sync()
		},
	}

	flags := root.PersistentFlags()
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")
	flags.BoolVar(&opts.json, "log-json", false, "Log JSON lines instead of console text")
	flags.StringVarP(&opts.configPath, "config", "c", "", "Config file (default: $TOOLKEEPER_CONFIG_DIR/toolkeeper.lua)")

	root.AddCommand(
		newRunCmd(opts),
		newCheckCmd(opts),
		newDownloadCmd(opts),
		newInitCmd(opts),
		newCharsetsCmd(),
		newInstallsCmd(opts),
		newVersionCmd(),
	)
	return root
}

// app is the state shared by the commands that work with the tool.
type app struct {
	logger   logging.Logger
	detector platform.Detector
	info     *platform.Info
	store    *config.Store
	cfg      *config.Config
	dataDir  string
}

// configStore opens the config store without reading the file.
func (o *rootOptions) configStore(detector platform.Detector) (*config.Store, error) {
	path := o.configPath
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	parser := config.NewParser(detector).WithLogger(o.logger)
	return config.NewStore(path, parser).WithLogger(o.logger), nil
}

// load detects the platform and reads the configuration.
func (o *rootOptions) load(ctx context.Context) (*app, error) {
	detector := platform.NewDetector()
	info, err := detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	store, err := o.configStore(detector)
	if err != nil {
		return nil, err
	}
	cfg, err := store.Load(ctx)
	if err != nil {
		var perr *config.ParseError
		if errors.As(err, &perr) {
			return nil, fmt.Errorf("%s: %s", store.Path(), config.FormatError(perr, o.verbose))
		}
		return nil, err
	}

	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}

	o.logger.Debug("configuration loaded",
		"path", store.Path(),
		"tool", cfg.Tool.Name,
		"platform", info.AssetTag(),
		"data_dir", dataDir,
	)
	return &app{
		logger:   o.logger,
		detector: detector,
		info:     info,
		store:    store,
		cfg:      cfg,
		dataDir:  dataDir,
	}, nil
}

// trust starts a run's trust state from the persisted accepted digest.
func (a *app) trust() *binary.Trust {
	if d := a.cfg.Tool.TrustedDigest; d != "" {
		return binary.NewTrust(d)
	}
	return binary.NewTrust()
}

func (a *app) resolver(trust *binary.Trust) (*binary.Resolver, error) {
	return binary.NewResolver(binary.ResolverConfig{
		Name:       a.cfg.Tool.Name,
		Platform:   a.info,
		BinDir:     binary.BinDir(a.dataDir),
		SearchPath: true,
		Trust:      trust,
		Logger:     a.logger,
	})
}

// installer returns nil when no release source is configured.
func (a *app) installer() (*binary.Installer, error) {
	if a.cfg.Release.API == "" {
		return nil, nil
	}
	dl := binary.NewDownloader(binary.DownloaderConfig{
		APIURL:    a.cfg.Release.API,
		UserAgent: "toolkeeper/" + Version,
		Logger:    a.logger,
	})
	return binary.NewInstaller(binary.InstallerConfig{
		Name:             a.cfg.Tool.Name,
		DataDir:          a.dataDir,
		Platform:         a.info,
		Downloader:       dl,
		KeyringPath:      a.cfg.Release.Keyring,
		RequireSignature: a.cfg.Release.RequireSignature,
		Logger:           a.logger,
	})
}

func (a *app) override() binary.Override {
	return binary.Override{Path: a.cfg.Tool.Path}
}
