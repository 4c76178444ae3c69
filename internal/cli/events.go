package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/autotab/api/internal/eventbus"
	"github.com/autotab/api/internal/models"
	"github.com/spf13/cobra"
)

var (
	eventsURL   string
	eventsCount int
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Follow models.trained events published by the API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := eventsURL
		if url == "" {
			url = cfg.NATSURL
		}
		if url == "" {
			return errors.New("no NATS server: set NATS_URL or pass --nats-url")
		}
		bus, err := eventbus.Connect(url, logger)
		if err != nil {
			return err
		}
		defer bus.Close()

		out := cmd.OutOrStdout()
		seen := make(chan struct{}, 16)
		sub, err := bus.Subscribe(eventbus.SubjectModelTrained, func(e eventbus.Event) {
			var ev models.TrainedEvent
			if err := json.Unmarshal(e.Data, &ev); err != nil {
				fmt.Fprintf(out, "%s  undecodable event: %v\n", e.Timestamp.Format("15:04:05"), err)
				return
			}
			fmt.Fprintf(out, "%s  %s  %-24s %-14s %s %.4f  model %s\n",
				ev.TrainedAt.Local().Format("15:04:05"), ev.OwnerID.String()[:8], ev.Name,
				ev.ProblemType, ev.Metric, ev.Score, ev.ModelID)
			select {
			case seen <- struct{}{}:
			default:
			}
		})
		if err != nil {
			return fmt.Errorf("subscribe: %w", err)
		}
		defer sub.Unsubscribe()
		fmt.Fprintf(out, "listening on %s (%s)\n", eventbus.SubjectModelTrained, url)

		for n := 0; eventsCount <= 0 || n < eventsCount; n++ {
			select {
			case <-seen:
			case <-cmd.Context().Done():
				return nil
			}
		}
		return nil
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsURL, "nats-url", "", "NATS server URL (defaults to NATS_URL)")
	eventsCmd.Flags().IntVar(&eventsCount, "count", 0, "exit after this many events (0 follows forever)")
	rootCmd.AddCommand(eventsCmd)
}
