package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge"
)

func init() {
	streamCmd.Flags().String("instructions", "", "Instructions that seed the session")
	streamCmd.Flags().Duration("timeout", 2*time.Minute, "Cancel generation after this long")

	rootCmd.AddCommand(streamCmd)
}

var streamCmd = &cobra.Command{
	Use:   "stream [prompt]",
	Short: "Stream the response to stdout as it is generated",
	Long: `Stream the response to stdout as it is generated. Every delivery is a
snapshot of the full response so far; the command prints only the suffix
new since the previous one.`,
	Example: `  modelbridge stream "Write a short story about a robot"
  modelbridge stream --instructions "You are a poet" "Write a haiku about mountains"`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt := args[0]

		b, modelRef, cfg := newBridge(cmd)

		requireAvailable(b, modelRef)

		sessionRef, err := b.CreateSession(modelRef, sessionInstructions(cmd, cfg))
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		defer func() { _ = b.Release(sessionRef) }()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()

		printed := 0

		_, err = modelbridge.StreamSync(ctx, b, sessionRef, prompt, func(snapshot string) {
			// Snapshots only ever grow, so the tail past printed is new.
			fmt.Print(snapshot[printed:])
			printed = len(snapshot)
		})
		if err != nil {
			log.Fatalf("generation failed: %v", err)
		}

		fmt.Printf("\n\ngenerated in %v\n", time.Since(start).Round(time.Millisecond))
	},
}
