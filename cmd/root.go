package cmd

import (
	"fmt"
	"os"

	"hostbackup/internal/application"
	"hostbackup/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
	logFile  string
)

// rootCmd represents the base command when called without any subcommands.
// A bare invocation runs one engine cycle: due schedules are evaluated and
// enqueued, then the queue is drained under the dispatch lock.
var rootCmd = &cobra.Command{
	Use:   "hostbackup",
	Short: "Backup job queue and retention engine for hosting accounts",
	Long: `hostbackup schedules, queues and executes account backups and restores,
and prunes old backup artifacts according to per-schedule retention.

Run it from cron without arguments; each invocation evaluates due schedules,
enqueues the resulting jobs and drains the queue. Only one invocation at a
time holds the dispatch lock, so overlapping cron fires exit cleanly.

Examples:
  # One engine cycle (the cron entry point)
  hostbackup --config /etc/hostbackup/config.yaml

  # Queue an immediate backup of two accounts
  hostbackup backup --account alice --account bob --destination offsite-s3

  # Queue a restore of a specific artifact
  hostbackup restore --destination offsite-s3 --file alice/backup-alice-20260829.tar.gz --homedir --mail

  # Daily outcome digest
  hostbackup summary`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := buildApplication()
		if err != nil {
			return err
		}
		return app.RunCycle(cmd.Context())
	},
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is env/built-in defaults only)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (quiet, normal, verbose, debug)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stdout")
}

// buildApplication loads configuration, applies CLI overrides and wires the
// engine. Shared by every subcommand.
func buildApplication() (*application.Application, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return application.New(cfg)
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hostbackup version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  hostbackup config > /etc/hostbackup/config.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(sampleConfig)
		},
	}
}

const sampleConfig = `# hostbackup configuration file

# Root of all engine state (queue, manifests, status files, lock file).
data_dir: /var/lib/hostbackup

# Where backup destinations are defined.
destinations_file: /var/lib/hostbackup/destinations.yaml

# Where backup schedules are defined.
schedules_file: /var/lib/hostbackup/schedules.json

# How account databases are captured during backup:
#   packager   - the account packager bundles databases into the archive
#   hot-backup - databases are dumped separately and uploaded alongside
#   skip       - databases are not backed up
database_method: packager

# How long per-operation status files are kept before cleanup.
status_retention: 720h

# Logging
log_level: normal        # quiet, normal, verbose, debug
log_format: text         # text or json
log_file: ""             # empty = stdout

# Platform integration
home_root: /home
packager_cmd: /usr/local/bin/pkgacct
db_backup_cmd: /usr/local/bin/dbdump
restore_cmd: /usr/local/bin/restoreacct

# MySQL DSN used when restoring database dumps (user:pass@tcp(host:3306)/).
# Leave empty to skip database restore support.
mysql_dsn: ""

# When set, artifacts are encrypted at rest before upload.
# Can also be supplied via HOSTBACKUP_ENCRYPTION_PASSPHRASE.
encryption_passphrase: ""

# Every option can be set via environment variables with the HOSTBACKUP_
# prefix, e.g. HOSTBACKUP_DATA_DIR=/srv/hostbackup.
`

func init() {
	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}
