// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/pagepilot/api/schemas"
	"github.com/xkilldash9x/pagepilot/internal/browser/session"
	"github.com/xkilldash9x/pagepilot/internal/config"
	"github.com/xkilldash9x/pagepilot/internal/extraction"
	"github.com/xkilldash9x/pagepilot/internal/llmclient"
	"github.com/xkilldash9x/pagepilot/internal/navigator"
	"github.com/xkilldash9x/pagepilot/internal/observability"
	"github.com/xkilldash9x/pagepilot/internal/prompt"
)

type contextKey string

const configKey contextKey = "config"

const envPrefix = "PAGEPILOT"

// Hooks for the collaborators RunE builds, replaced in tests.
var (
	newLLMClient = llmclient.NewClient
	newDriver    = func(cfg config.BrowserConfig, logger *zap.Logger) session.Driver {
		return session.NewChromeDriver(cfg, logger)
	}
	newPrompter = func(cmd *cobra.Command) prompt.Prompter {
		return prompt.NewHuhPrompter(prompt.WithAccessible(os.Getenv("ACCESSIBLE") != ""))
	}
)

// rootFlags holds the values of the command line overrides.
type rootFlags struct {
	cfgFile  string
	headless bool
	maxSteps int
	model    string
}

// NewRootCommand builds a fresh root command. Every call returns an
// independent instance so tests do not share flag state.
func NewRootCommand() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "pagepilot [flags] <url>",
		Short: "Browse a website from the terminal with an LLM picking out what to do on each page.",
		Long: `pagepilot opens a page in headless Chrome, asks the model for a short summary
and a list of actions (links to follow and forms to fill), and lets you pick
one. The chosen action is carried out and the cycle repeats on the new page.`,
		Version:       Version,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), validateTargetURL),
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(v, flags.cfgFile); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}
			applyFlagOverrides(cmd, flags, cfg)

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting pagepilot", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			// Usage is only useful for argument errors, which cobra reports before RunE.
			cmd.SilenceUsage = true

			cfg, ok := cmd.Context().Value(configKey).(config.Interface)
			if !ok {
				return errors.New("configuration was not loaded")
			}
			err := runNavigator(cmd, cfg, args[0])
			if errors.Is(err, schemas.ErrOperatorCancelled) {
				prompt.NewPrinter(cmd.OutOrStdout()).Infof("Operation cancelled. Exiting.")
				return nil
			}
			return err
		},
	}

	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
	cmd.PersistentFlags().StringVarP(&flags.cfgFile, "config", "c", "", "config file (default is ./pagepilot.yaml or $HOME/.pagepilot/pagepilot.yaml)")
	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser without a window")
	cmd.Flags().IntVar(&flags.maxSteps, "max-steps", 0, "stop after this many pages (0 means no limit)")
	cmd.Flags().StringVarP(&flags.model, "model", "m", "", "LLM model used to summarize pages")

	cmd.AddCommand(newVersionCmd())
	return cmd
}

// Execute runs the root command with the given context. Failures other than a
// shutdown signal are logged before they are returned.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			observability.GetLogger().Error("Command execution failed", zap.Error(err))
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

// runNavigator wires the session, LLM client and loop for one run. The
// session is always closed before returning.
func runNavigator(cmd *cobra.Command, cfg config.Interface, target string) error {
	ctx := cmd.Context()
	logger := observability.GetLogger()

	if strings.TrimSpace(cfg.LLM().APIKey) == "" {
		return &schemas.StartupError{Reason: "GEMINI_API_KEY is not set"}
	}

	llm, err := newLLMClient(ctx, cfg.LLM(), logger)
	if err != nil {
		return &schemas.StartupError{Reason: "could not create the LLM client", Err: err}
	}
	defer func() {
		if err := llm.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
	}()

	sess, err := session.New(cfg, newDriver(cfg.Browser(), logger), logger)
	if err != nil {
		return &schemas.StartupError{Reason: "could not create the browser session", Err: err}
	}
	defer func() {
		// Close detaches from ctx, so teardown still runs after an interrupt.
		if err := sess.Close(ctx); err != nil {
			logger.Warn("Error closing browser session.", zap.Error(err))
		}
	}()

	nav := navigator.New(
		cfg,
		sess,
		extraction.NewExtractor(llm, cfg.Navigator(), logger),
		newPrompter(cmd),
		prompt.NewPrinter(cmd.OutOrStdout()),
		logger,
	)
	return nav.Run(ctx, target)
}

// applyFlagOverrides copies explicitly set flags over the loaded configuration.
func applyFlagOverrides(cmd *cobra.Command, flags *rootFlags, cfg config.Interface) {
	set := cmd.Flags()
	if set.Changed("headless") {
		cfg.SetBrowserHeadless(flags.headless)
	}
	if set.Changed("max-steps") {
		cfg.SetNavigatorMaxSteps(flags.maxSteps)
	}
	if set.Changed("model") {
		cfg.SetLLMModel(flags.model)
	}
}

// validateTargetURL accepts only absolute http and https URLs.
func validateTargetURL(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", args[0], err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid URL %q: expected an absolute http or https URL", args[0])
	}
	return nil
}

// initializeConfig loads .env, the config file and PAGEPILOT_* variables into v.
func initializeConfig(v *viper.Viper, cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("error loading .env file: %w", err)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("pagepilot")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".pagepilot"))
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment apply.
	}
	return nil
}
