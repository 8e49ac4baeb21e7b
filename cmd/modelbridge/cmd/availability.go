package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge/bridge"
)

func init() {
	rootCmd.AddCommand(availabilityCmd)
}

// availabilityCmd reports whether the selected engine can serve requests.
// Exit code 0 means available, 1 means not.
var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Check whether the model is ready to generate",
	Example: `  modelbridge availability
  modelbridge --engine openai availability`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		b, modelRef, _ := newBridge(cmd)

		if modelRef == bridge.NilRef {
			modelRef = b.AcquireDefaultModel()
		}
		defer func() { _ = b.Release(modelRef) }()

		ok, reason, err := b.IsAvailable(modelRef)
		if err != nil {
			fmt.Fprintf(os.Stderr, "availability check failed: %v\n", err)
			os.Exit(1)
		}

		if !ok {
			fmt.Printf("unavailable: %s\n", reason)
			os.Exit(1)
		}

		fmt.Println("available")
	},
}
