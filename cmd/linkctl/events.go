package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/qiminjie89/linkkit/pkg/kafka"
	"github.com/qiminjie89/linkkit/pkg/logger"
	"github.com/qiminjie89/linkkit/pkg/signaling"
)

var (
	eventsBrokers []string
	eventsTopic   string
	eventsGroup   string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail signaling relay events from Kafka",
	Long: `Consume the registration, relay and rejection events that signald publishes
to Kafka and print one line per event. Brokers, topic and consumer group come
from the events section of the config unless overridden by flags.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := linkCfg.Events
		if len(eventsBrokers) > 0 {
			cfg.Brokers = eventsBrokers
		}
		if eventsTopic != "" {
			cfg.Topic = eventsTopic
		}
		if eventsGroup != "" {
			cfg.ConsumerGroup = eventsGroup
		}

		consumer, err := kafka.NewConsumer(&kafka.ConsumerConfig{
			Brokers:       cfg.Brokers,
			Topic:         cfg.Topic,
			ConsumerGroup: cfg.ConsumerGroup,
		}, logger.Named("kafka"))
		if err != nil {
			return err
		}
		defer consumer.Close()

		ctx, cancel := commandContext()
		defer cancel()

		out := cmd.OutOrStdout()
		return consumer.Run(ctx, func(e signaling.Event) error {
			_, err := fmt.Fprintln(out, formatEvent(e))
			return err
		})
	},
}

func formatEvent(e signaling.Event) string {
	s := fmt.Sprintf("%s %-12s peer=%s", e.At.Format(time.RFC3339), e.Type, e.Peer)
	if e.To != "" {
		s += " to=" + e.To
	}
	if e.Msg != "" {
		s += " msg=" + e.Msg
	}
	if e.Session != "" {
		s += " sid=" + e.Session
	}
	if e.Code != 0 {
		s += fmt.Sprintf(" code=%d(%s)", e.Code, signaling.ErrCodeMessage[e.Code])
	}
	return s
}

func init() {
	eventsCmd.Flags().StringSliceVar(&eventsBrokers, "brokers", nil, "Kafka brokers (comma separated)")
	eventsCmd.Flags().StringVar(&eventsTopic, "topic", "", "events topic")
	eventsCmd.Flags().StringVar(&eventsGroup, "group", "", "consumer group")
}
