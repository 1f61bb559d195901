package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/turtacn/mapsync/internal/domain/visibleset"
	"github.com/turtacn/mapsync/internal/infrastructure/messaging/kafka"
)

// TailOptions holds events tail flags.
type TailOptions struct {
	GroupID       string
	FromBeginning bool
	Limit         int
}

// messageSource is the part of kafka.Consumer tail needs.
type messageSource interface {
	Start(ctx context.Context, handler kafka.MessageHandler) error
	Close() error
}

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect published visible-set events",
	}
	cmd.AddCommand(newEventsTailCmd())
	return cmd
}

func newEventsTailCmd() *cobra.Command {
	opts := &TailOptions{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print visible-set summaries as they are published",
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			cfg := cliCtx.Config

			group := opts.GroupID
			if group == "" {
				group = "mapsync-tail-" + uuid.New().String()
			}
			offset := "latest"
			if opts.FromBeginning {
				offset = "earliest"
			}
			consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
				Brokers:         cfg.Kafka.Brokers,
				GroupID:         group,
				Topic:           cfg.Kafka.Topic,
				AutoOffsetReset: offset,
			}, cliCtx.Logger.Named("kafka"))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runTail(ctx, consumer, cmd.OutOrStdout(), strings.EqualFold(cliCtx.OutputFormat, "json"), opts.Limit)
		},
	}
	cmd.Flags().StringVar(&opts.GroupID, "group", "", "consumer group (default: a fresh group per run)")
	cmd.Flags().BoolVar(&opts.FromBeginning, "from-beginning", false, "start from the earliest retained event")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "stop after this many events (0 means until interrupted)")
	return cmd
}

// runTail prints summaries from src until ctx is done or limit events have
// been printed.
func runTail(ctx context.Context, src messageSource, w io.Writer, asJSON bool, limit int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu      sync.Mutex
		printed int
	)
	printSummary := summaryPrinter(w, asJSON)
	err := src.Start(ctx, func(_ context.Context, msg *kafka.ReceivedMessage) error {
		mu.Lock()
		defer mu.Unlock()
		if limit > 0 && printed >= limit {
			return nil
		}
		ok, err := printSummary(msg)
		if err != nil || !ok {
			return err
		}
		printed++
		if limit > 0 && printed >= limit {
			cancel()
		}
		return nil
	})
	if err != nil {
		return err
	}

	<-ctx.Done()
	return src.Close()
}

// summaryPrinter decodes visible-set envelopes and writes one line (or one
// JSON document) per event.  Other event types are skipped.
func summaryPrinter(w io.Writer, asJSON bool) func(*kafka.ReceivedMessage) (bool, error) {
	return func(msg *kafka.ReceivedMessage) (bool, error) {
		env, err := kafka.MessageToEventEnvelope(msg.Value)
		if err != nil {
			return false, err
		}
		if env.EventType != kafka.EventTypeVisibleSetChanged {
			return false, nil
		}
		var s visibleset.Summary
		if err := env.DecodePayload(&s); err != nil {
			return false, err
		}
		if asJSON {
			return true, printJSON(w, s)
		}
		_, err = fmt.Fprintf(w, "%s seq=%d mode=%s precision=%d count=%d session=%s ids=%s\n",
			s.At.Format("15:04:05.000"), s.Sequence, s.Mode, s.Precision, s.Count,
			s.SessionID, truncateString(strings.Join(s.IDs, ","), 80))
		return true, err
	}
}

//Personal.AI order the ending
