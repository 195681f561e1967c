package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/civicadmin/internal/apiclient"
	"github.com/joescharf/civicadmin/internal/auth"
	"github.com/joescharf/civicadmin/internal/output"
	"github.com/joescharf/civicadmin/internal/store"
	"github.com/joescharf/civicadmin/internal/viewmodel"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose    bool
	dryRun     bool
	jsonOutput bool
)

// envKeyReplacer maps api.base_url to CIVIC_API_BASE_URL.
var envKeyReplacer = strings.NewReplacer(".", "_")

var rootCmd = &cobra.Command{
	Use:   "civicadmin",
	Short: "Operator client for the civic issue tracker",
	Long: `civicadmin signs in to the civic issue backend, shows the dashboard
statistics, and lets an operator search reported issues and move them
through New, Processing, Sorting it out and Completed.

Running bare 'civicadmin' shows the dashboard.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/civicadmin/config.yaml)")
}

func initConfig() {
	// A .env in the working directory seeds the environment; real
	// environment variables win.
	_ = godotenv.Load()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		dir, err := configDirFunc()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}
		viper.AddConfigPath(dir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CIVIC")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	dir, _ := configDirFunc()
	setDefaults(dir)

	_ = viper.ReadInConfig()
}

// setDefaults registers every config key with its default, rooted at dir.
func setDefaults(dir string) {
	viper.SetDefault("state_dir", dir)
	viper.SetDefault("db_path", filepath.Join(dir, "civicadmin.db"))
	viper.SetDefault("api.base_url", "")
	viper.SetDefault("api.timeout", "30s")
	viper.SetDefault("auth.token", "")
	viper.SetDefault("auth.token_file", filepath.Join(dir, "token"))
	viper.SetDefault("auth.token_command", "")
	viper.SetDefault("port", 8080)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// The store is opened lazily so config and version run without a db.
}

// rootRun handles `civicadmin` with no subcommand: show the dashboard when
// an API is configured, help otherwise.
func rootRun(cmd *cobra.Command) error {
	if viper.GetString("api.base_url") == "" {
		return cmd.Help()
	}
	return statsRun(cmd.Context())
}

// getStore returns the shared activity journal, opening it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(context.Background()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// tokenProvider builds the provider chain from config: an explicit token,
// then the login token file, then the token command.
func tokenProvider() auth.Chain {
	var chain auth.Chain
	for _, np := range namedProviders() {
		chain = append(chain, np.provider)
	}
	return chain
}

func newAPIClient() (*apiclient.Client, error) {
	base := viper.GetString("api.base_url")
	if base == "" {
		return nil, fmt.Errorf("api.base_url is not set (set CIVIC_API_BASE_URL or run 'civicadmin config init')")
	}
	return apiclient.New(apiclient.Config{
		BaseURL:    base,
		Tokens:     tokenProvider(),
		HTTPClient: &http.Client{Timeout: viper.GetDuration("api.timeout")},
		Logger:     slog.Default(),
	})
}

// viewModelOptions journals to the activity store when it can be opened.
// A journal that cannot be opened only costs the history.
func viewModelOptions() []viewmodel.Option {
	opts := []viewmodel.Option{viewmodel.WithLogger(slog.Default())}
	s, err := getStore()
	if err != nil {
		ui.VerboseLog("activity journal unavailable: %v", err)
		return opts
	}
	return append(opts, viewmodel.WithRecorder(s))
}

func newIssuesViewModel() (*viewmodel.Issues, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	return viewmodel.NewIssues(client, viewModelOptions()...), nil
}

func newStatsViewModel() (*viewmodel.Stats, error) {
	client, err := newAPIClient()
	if err != nil {
		return nil, err
	}
	return viewmodel.NewStats(client, viewModelOptions()...), nil
}
