// Package root contains the root command for the application
package root

import (
	"fjacquet/ledger-reconcile/internal/amountparse"
	"fjacquet/ledger-reconcile/internal/classify"
	"fjacquet/ledger-reconcile/internal/config"
	"fjacquet/ledger-reconcile/internal/feed"
	"fjacquet/ledger-reconcile/internal/journal"
	"fjacquet/ledger-reconcile/internal/ledgerfmt"
	"fjacquet/ledger-reconcile/internal/match"
	"fjacquet/ledger-reconcile/internal/reconcile"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CommonFlags represents the flags shared by the subcommands. Empty values
// fall back to the loaded configuration.
type CommonFlags struct {
	Journal        string
	Output         string
	Feeds          []string
	AccountOutputs string
	Limit          string
	DefaultAccount string
	Currency       string
	FuzzyDays      int
	DryRun         bool
	AutoCreate     bool
}

var (
	// Log is the shared logger instance for commands
	Log = logrus.New()

	// Cfg is the loaded application configuration
	Cfg *config.Config

	// Cmd is the root command
	Cmd = &cobra.Command{
		Use:   "ledger-reconcile",
		Short: "A CLI tool to reconcile external transaction feeds against a plain-text journal.",
		Long: `ledger-reconcile matches downloaded bank transactions (Mint-style CSV or
CAMT.053 XML) against the postings of a plain-text journal, annotates matched
postings with their source record and appends new transactions for the rest.`,
		Run: func(cmd *cobra.Command, args []string) {
			Log.Info("Welcome to ledger-reconcile!")
			Log.Info("Use --help to see available commands")
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize and configure logging
			config.LoadEnv()
			Log = config.ConfigureLogging()

			cfg, err := config.InitializeConfig()
			if err != nil {
				Log.Fatalf("Failed to load configuration: %v", err)
			}
			Cfg = cfg
			Log = config.ConfigureLoggingFromConfig(cfg)

			// Set the configured logger for all packages
			amountparse.SetLogger(Log)
			journal.SetLogger(Log)
			ledgerfmt.SetLogger(Log)
			match.SetLogger(Log)
			feed.SetLogger(Log)
			classify.SetLogger(Log)
			reconcile.SetLogger(Log)
		},
	}

	// SharedFlags are the common flags accessible to all commands
	SharedFlags = CommonFlags{}
)

// Init initializes the root command and all flags
func Init() {
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Journal, "journal", "j", "", "Input journal file")
	Cmd.PersistentFlags().StringVarP(&SharedFlags.Output, "output", "o", "", "Output journal file for new entries (defaults to the input journal)")
	Cmd.PersistentFlags().StringSliceVarP(&SharedFlags.Feeds, "feed", "f", nil, "External feed file (.csv or .xml), repeatable")
	Cmd.PersistentFlags().StringVar(&SharedFlags.AccountOutputs, "account-outputs", "", "YAML file routing new open directives to files")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Limit, "limit", "", "Only reconcile accounts fully matching this regexp")
	Cmd.PersistentFlags().StringVar(&SharedFlags.DefaultAccount, "default-account", "", "Target account proposed without a classifier prediction")
	Cmd.PersistentFlags().StringVar(&SharedFlags.Currency, "currency", "", "Currency assumed for feed amounts without one")
	Cmd.PersistentFlags().IntVar(&SharedFlags.FuzzyDays, "fuzzy-days", -1, "Date tolerance in days when matching postings")
}

// SessionOptions merges flags over the loaded configuration into the options
// for a reconciliation session.
func SessionOptions() (reconcile.Options, error) {
	opts := reconcile.Options{
		Journal:         fallback(SharedFlags.Journal, Cfg.Journal.Input),
		Output:          fallback(SharedFlags.Output, Cfg.Journal.Output),
		AccountLimit:    fallback(SharedFlags.Limit, Cfg.Match.AccountLimit),
		DefaultAccount:  fallback(SharedFlags.DefaultAccount, Cfg.Classifier.DefaultAccount),
		AssumedCurrency: fallback(SharedFlags.Currency, Cfg.Journal.Currency),
		FuzzyMatchDays:  Cfg.Match.FuzzyDays,
	}
	if SharedFlags.FuzzyDays >= 0 {
		opts.FuzzyMatchDays = SharedFlags.FuzzyDays
	}

	routingPath := fallback(SharedFlags.AccountOutputs, Cfg.Journal.AccountOutputs)
	rules, err := config.LoadAccountRouting(routingPath)
	if err != nil {
		return reconcile.Options{}, err
	}
	for _, rule := range rules {
		opts.AccountOutputs = append(opts.AccountOutputs, reconcile.OutputRule{
			Pattern:  rule.Pattern,
			Filename: rule.Filename,
		})
	}
	return opts, nil
}

func fallback(value, def string) string {
	if value != "" {
		return value
	}
	return def
}
