package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/annel0/voxel-world/internal/eventbus"
	"github.com/annel0/voxel-world/internal/world"
)

const timeFormat = "2006-01-02T15:04:05Z"

func main() {
	var (
		natsURL    = flag.String("nats", nats.DefaultURL, "адрес NATS")
		prefix     = flag.String("prefix", "world", "префикс subject событий мира")
		command    = flag.String("cmd", "tail", "команда: tail, stats")
		eventTypes = flag.String("types", "", "фильтр типов событий через запятую")
		since      = flag.String("since", "", "начать с момента: длительность (1h, 30m) или RFC3339; пусто - только новые")
		limit      = flag.Int("limit", 0, "остановиться после N событий (0 - без ограничения)")
	)
	flag.Parse()

	nc, err := nats.Connect(*natsURL, nats.Name("world-event-cli"))
	if err != nil {
		log.Fatalf("❌ Не удалось подключиться к NATS: %v", err)
	}
	defer nc.Close()

	js, err := nc.JetStream()
	if err != nil {
		log.Fatalf("❌ JetStream недоступен: %v", err)
	}

	opts := &queryOptions{
		Subject: *prefix + ".*",
		Types:   parseStringList(*eventTypes),
		Limit:   *limit,
	}
	if *since != "" {
		start, err := parseSinceTime(*since, time.Now())
		if err != nil {
			log.Fatalf("❌ Неверное значение -since: %v", err)
		}
		opts.Since = &start
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *command {
	case "tail":
		err = tailEvents(ctx, js, opts)
	case "stats":
		if opts.Since == nil {
			start := time.Now().Add(-time.Hour)
			opts.Since = &start
		}
		err = showStats(ctx, js, opts)
	default:
		fmt.Printf("❌ Неизвестная команда: %s\n", *command)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("❌ %s: %v", *command, err)
	}
}

type queryOptions struct {
	Subject string
	Types   []string
	Since   *time.Time
	Limit   int
}

func (o *queryOptions) subscribeOpts() []nats.SubOpt {
	opts := []nats.SubOpt{nats.OrderedConsumer()}
	if o.Since != nil {
		opts = append(opts, nats.StartTime(*o.Since))
	} else {
		opts = append(opts, nats.DeliverNew())
	}
	return opts
}

func (o *queryOptions) match(ev *eventbus.Envelope) bool {
	if len(o.Types) == 0 {
		return true
	}
	for _, t := range o.Types {
		if t == ev.EventType {
			return true
		}
	}
	return false
}

// tailEvents печатает события по мере поступления
func tailEvents(ctx context.Context, js nats.JetStreamContext, opts *queryOptions) error {
	sub, err := js.SubscribeSync(opts.Subject, opts.subscribeOpts()...)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	fmt.Printf("🎬 Слушаем %s (Ctrl+C для выхода)\n", opts.Subject)
	count := 0
	for opts.Limit == 0 || count < opts.Limit {
		msg, err := sub.NextMsgWithContext(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return err
		}
		ev, ok := decode(msg)
		if !ok || !opts.match(ev) {
			continue
		}
		printEvent(ev)
		count++
	}
	fmt.Printf("\n📊 Всего событий: %d\n", count)
	return nil
}

// showStats считает события по типам с момента Since до текущего конца стрима
func showStats(ctx context.Context, js nats.JetStreamContext, opts *queryOptions) error {
	sub, err := js.SubscribeSync(opts.Subject, opts.subscribeOpts()...)
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()

	byType := make(map[string]int)
	chunks := make(map[world.ChunkCoord]struct{})
	total := 0
	for {
		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		msg, err := sub.NextMsgWithContext(waitCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				break // стрим вычитан
			}
			return err
		}

		if ev, ok := decode(msg); ok && opts.match(ev) {
			total++
			byType[ev.EventType]++
			var ce world.ChunkEvent
			if ev.Decode(&ce) == nil {
				chunks[world.ChunkCoord{X: ce.X, Z: ce.Z}] = struct{}{}
			}
		}

		if meta, err := msg.Metadata(); err == nil && meta.NumPending == 0 {
			break
		}
		if opts.Limit > 0 && total >= opts.Limit {
			break
		}
	}

	fmt.Printf("Период: %s - %s\n", opts.Since.UTC().Format(timeFormat), time.Now().UTC().Format(timeFormat))
	fmt.Printf("Всего событий: %d, затронуто чанков: %d\n", total, len(chunks))

	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Printf("  %s: %d\n", t, byType[t])
	}
	return nil
}

func decode(msg *nats.Msg) (*eventbus.Envelope, bool) {
	var ev eventbus.Envelope
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		fmt.Printf("⚠️  Пропущено сообщение %s: %v\n", msg.Subject, err)
		return nil, false
	}
	return &ev, true
}

func printEvent(ev *eventbus.Envelope) {
	fmt.Printf("[%s] %s/%s id=%s\n",
		ev.Timestamp.UTC().Format(timeFormat), ev.Source, ev.EventType, ev.ID)

	var ce world.ChunkEvent
	if err := ev.Decode(&ce); err == nil {
		fmt.Printf("  Чанк: (%d,%d) состояние=%s изменён=%v\n", ce.X, ce.Z, ce.State, ce.Modified)
	}
}

// parseStringList разбирает строку с разделителями-запятыми
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseSinceTime разбирает относительное время ("1h", "30m") или RFC3339
func parseSinceTime(since string, from time.Time) (time.Time, error) {
	duration, err := time.ParseDuration(since)
	if err != nil {
		return time.Parse(time.RFC3339, since)
	}
	return from.Add(-duration), nil
}
