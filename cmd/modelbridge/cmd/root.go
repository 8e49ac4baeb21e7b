package cmd

import (
	"log/slog"
	"os"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/apex/log"
	clihandler "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge/bridge"
	"github.com/hupe1980/modelbridge/engine"
	"github.com/hupe1980/modelbridge/engine/anthropic"
	"github.com/hupe1980/modelbridge/engine/fm"
	"github.com/hupe1980/modelbridge/engine/openai"
	"github.com/hupe1980/modelbridge/logging"
	"github.com/hupe1980/modelbridge/session"
)

func init() {
	log.SetHandler(clihandler.Default)

	rootCmd.PersistentFlags().BoolP("verbose", "V", false, "Show debug logs")
	rootCmd.PersistentFlags().String("engine", "", "Engine to drive: fm, scripted, openai, anthropic (default fm)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
}

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "modelbridge",
	Short: "Drive an on-device language model through the bridge",
}

// setupSlog configures slog based on the verbose flag. The library logs
// through slog; apex/log renders the CLI's own human-facing output.
func setupSlog(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// newBridgeLogger builds the library-side logger: text diagnostics on stderr,
// level tied to the verbose flag.
func newBridgeLogger(verbose bool) logging.Logger {
	cfg := logging.DefaultLoggerConfig()
	cfg.Format = "text"
	cfg.Output = os.Stderr
	cfg.AddSource = false

	if verbose {
		cfg.Level = logging.LogLevelDebug
	}

	return logging.NewLogger(cfg).WithComponent("bridge")
}

// newBridge builds the bridge from flags and the optional config file. The
// returned model ref is NilRef unless the config tunes generation, in which
// case it names a model carrying those options.
func newBridge(cmd *cobra.Command) (*bridge.Bridge, bridge.Ref, *Config) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupSlog(verbose)

	path, _ := cmd.Flags().GetString("config")

	cfg, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if name, _ := cmd.Flags().GetString("engine"); name != "" {
		cfg.Engine = name
	}

	eng := selectEngine(cfg)

	b := bridge.New(func(o *bridge.Options) {
		o.Engine = eng
		o.Logger = newBridgeLogger(verbose)
	})

	modelRef := bridge.NilRef
	if cfg.Temperature != nil || cfg.MaxTokens != nil {
		modelRef = b.CreateModel(eng, func(o *session.ModelOptions) {
			o.Temperature = cfg.Temperature
			o.MaximumResponseTokens = cfg.MaxTokens
		})
	}

	return b, modelRef, cfg
}

// requireAvailable exits the process when the model cannot serve requests.
func requireAvailable(b *bridge.Bridge, modelRef bridge.Ref) {
	owned := false
	if modelRef == bridge.NilRef {
		modelRef = b.AcquireDefaultModel()
		owned = true
	}

	ok, reason, err := b.IsAvailable(modelRef)

	if owned {
		_ = b.Release(modelRef)
	}

	if err != nil {
		log.Fatalf("availability: %v", err)
	}

	if !ok {
		log.Fatalf("model unavailable: %s", reason)
	}
}

// sessionInstructions resolves the per-command --instructions flag against
// the config file.
func sessionInstructions(cmd *cobra.Command, cfg *Config) string {
	if instructions, _ := cmd.Flags().GetString("instructions"); instructions != "" {
		return instructions
	}

	return cfg.Instructions
}

func selectEngine(cfg *Config) engine.Engine {
	switch cfg.Engine {
	case "", "fm":
		return fm.New()
	case "scripted":
		eng := engine.NewScripted("demo")
		for input, response := range cfg.Responses {
			eng.AddResponse(input, response)
		}

		return eng
	case "openai":
		return openai.New(func(o *openai.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
		})
	case "anthropic":
		return anthropic.New(func(o *anthropic.Options) {
			if cfg.Model != "" {
				o.Model = anthropicsdk.Model(cfg.Model)
			}
		})
	default:
		log.Fatalf("unknown engine %q", cfg.Engine)
		return nil
	}
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Error(err.Error())
		os.Exit(1)
	}
}
