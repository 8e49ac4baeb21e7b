package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/hupe1980/modelbridge"
	"github.com/hupe1980/modelbridge/bridge"
	"github.com/hupe1980/modelbridge/schema"
)

func init() {
	toolsCmd.Flags().String("instructions", "", "Instructions that seed the session")
	toolsCmd.Flags().Duration("timeout", 2*time.Minute, "Cancel generation after this long")

	rootCmd.AddCommand(toolsCmd)
}

// toolsCmd demonstrates the tool-call round trip with a canned weather tool:
// the model requests a call, the CLI finishes it by id, and the model folds
// the output into its final answer.
var toolsCmd = &cobra.Command{
	Use:   "tools [prompt]",
	Short: "Answer a question with a demo weather tool registered",
	Example: `  modelbridge tools "What's the weather in Tokyo?"`,
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		prompt := args[0]

		b, modelRef, cfg := newBridge(cmd)

		requireAvailable(b, modelRef)

		paramsRef := b.CreateSchema("WeatherParams", "Parameters for the weather tool")
		defer func() { _ = b.Release(paramsRef) }()

		cityProp := b.CreateProperty("city", "The city to look up", schema.TypeString, false)
		defer func() { _ = b.Release(cityProp) }()

		if err := b.AddProperty(paramsRef, cityProp); err != nil {
			log.Fatalf("schema: %v", err)
		}

		var toolRef bridge.Ref

		toolRef, err := b.CreateTool("get_weather", "Gets current weather for a city", paramsRef, func(argsRef bridge.Ref, callID uint64) {
			go func() {
				city, err := b.ContentText(argsRef, "city")
				_ = b.Release(argsRef)

				if err != nil {
					city = "unknown"
				}

				fmt.Printf("[tool] get_weather(%s) call %d\n", city, callID)

				// Canned report; a real tool would call a weather API here.
				if err := b.FinishCall(toolRef, callID, fmt.Sprintf("Sunny and 22°C in %s", city)); err != nil {
					log.Errorf("finish call %d: %v", callID, err)
				}
			}()
		})
		if err != nil {
			log.Fatalf("create tool: %v", err)
		}
		defer func() { _ = b.Release(toolRef) }()

		sessionRef, err := b.CreateSession(modelRef, sessionInstructions(cmd, cfg), toolRef)
		if err != nil {
			log.Fatalf("create session: %v", err)
		}
		defer func() { _ = b.Release(sessionRef) }()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		text, err := modelbridge.AskSync(ctx, b, sessionRef, prompt)
		if err != nil {
			log.Fatalf("generation failed: %v", err)
		}

		fmt.Println(text)
	},
}
