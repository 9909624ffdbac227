package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/waapi-kit/waapi-kit/internal/waapi"
)

// watchLine is one event as printed by watch.
type watchLine struct {
	Time        time.Time       `json:"time"`
	Topic       string          `json:"topic"`
	Publication uint64          `json:"publication"`
	Kwargs      json.RawMessage `json:"kwargs,omitempty"`
	Args        json.RawMessage `json:"args,omitempty"`
}

var watchCmd = &cobra.Command{
	Use:   "watch [topic...]",
	Short: "Stream notifications as JSON lines",
	Long: `Subscribes to the given topics (the object change topics when none are
given) and prints one JSON object per event until interrupted or the
session ends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		topics := args
		if len(topics) == 0 {
			topics = waapi.ChangeTopics()
		}

		a, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		if err := a.connect(ctx); err != nil {
			return err
		}

		lost := make(chan waapi.State, 1)
		remove := a.client.OnStateChange(func(s waapi.State) {
			if !s.IsConnected() {
				select {
				case lost <- s:
				default:
				}
			}
		})
		defer remove()

		var mu sync.Mutex
		enc := json.NewEncoder(cmd.OutOrStdout())
		handler := func(ev waapi.Event) {
			line := watchLine{
				Time:        time.Now(),
				Topic:       ev.Topic,
				Publication: uint64(ev.Publication),
				Kwargs:      ev.Kwargs,
			}
			if len(ev.Args) > 0 {
				line.Args, _ = json.Marshal(ev.Args)
			}
			mu.Lock()
			defer mu.Unlock()
			if err := enc.Encode(line); err != nil {
				a.log.Warn().Err(err).Msg("write event")
			}
		}

		for _, topic := range topics {
			if _, err := a.client.Subscribe(ctx, topic, handler, nil); err != nil {
				return fmt.Errorf("subscribe %s: %w", topic, err)
			}
			a.log.Debug().Str("topic", topic).Msg("subscribed")
		}

		select {
		case <-ctx.Done():
			return nil
		case s := <-lost:
			return fmt.Errorf("session ended: %s", s.Status)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
