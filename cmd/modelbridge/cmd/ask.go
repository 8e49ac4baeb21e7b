package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge"
)

func init() {
	askCmd.Flags().String("instructions", "", "Instructions that seed the session")
	askCmd.Flags().Duration("timeout", 2*time.Minute, "Cancel generation after this long")
	askCmd.Flags().Bool("transcript", false, "Print the session transcript as JSON afterwards")

	rootCmd.AddCommand(askCmd)
}

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Ask the model a question and print the full response",
	Example: `  modelbridge ask "Tell me about Go"
  modelbridge ask --instructions "Respond only in French" "Say hello"
  modelbridge --engine scripted --config demo.yaml ask "Say hello"`,
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

		s := spinner.New(spinner.CharSets[9], 150*time.Millisecond)
		s.Suffix = " generating..."
		s.Start()

		text, err := modelbridge.AskSync(ctx, b, sessionRef, prompt)

		s.Stop()

		if err != nil {
			log.Fatalf("generation failed: %v", err)
		}

		fmt.Println(text)

		if show, _ := cmd.Flags().GetBool("transcript"); show {
			raw, err := b.TranscriptJSON(sessionRef)
			if err != nil {
				log.Fatalf("transcript: %v", err)
			}

			fmt.Println(raw)
		}
	},
}
