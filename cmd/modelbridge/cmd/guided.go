package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge/bridge"
	"github.com/hupe1980/modelbridge/core"
)

func init() {
	guidedCmd.Flags().String("schema", "", "Path to a JSON schema the response must conform to (required)")
	guidedCmd.Flags().String("instructions", "", "Instructions that seed the session")
	guidedCmd.Flags().Duration("timeout", 2*time.Minute, "Cancel generation after this long")

	_ = guidedCmd.MarkFlagRequired("schema")

	rootCmd.AddCommand(guidedCmd)
}

var guidedCmd = &cobra.Command{
	Use:   "guided [prompt]",
	Short: "Generate a response constrained to a JSON schema",
	Long: `Generate a response constrained to a JSON schema and print it as JSON.
The schema file is a standard JSON schema document with a title, a
properties object and a required array.`,
	Example: `  modelbridge guided --schema cat.json "Describe a cat"`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt := args[0]

		b, modelRef, cfg := newBridge(cmd)

		requireAvailable(b, modelRef)

		path, _ := cmd.Flags().GetString("schema")

		doc, err := os.ReadFile(path)
		if err != nil {
			log.Fatalf("read schema: %v", err)
		}

		sessionRef, err := b.CreateSession(modelRef, sessionInstructions(cmd, cfg))
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		defer func() { _ = b.Release(sessionRef) }()

		type delivery struct {
			status     core.Status
			contentRef bridge.Ref
		}

		deliveries := make(chan delivery, 1)

		taskRef, err := b.RespondWithSchemaJSON(sessionRef, prompt, string(doc), func(status core.Status, contentRef bridge.Ref) {
			deliveries <- delivery{status: status, contentRef: contentRef}
		})
		if err != nil {
			log.Fatalf("request failed: %v", err)
		}
		defer func() { _ = b.Release(taskRef) }()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var d delivery

		select {
		case <-ctx.Done():
			_ = b.CancelTask(taskRef)
			d = <-deliveries
		case d = <-deliveries:
		}

		if !d.status.OK() {
			log.Fatalf("generation failed with status %s", d.status)
		}

		raw, err := b.ContentJSON(d.contentRef)
		if err != nil {
			log.Fatalf("content: %v", err)
		}
		defer func() { _ = b.Release(d.contentRef) }()

		fmt.Println(raw)
	},
}
