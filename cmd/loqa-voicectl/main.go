package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-voice/internal/bus"
	"github.com/loqalabs/loqa-voice/internal/catalog"
	"github.com/loqalabs/loqa-voice/internal/config"
	"github.com/loqalabs/loqa-voice/internal/eventbus"
	"github.com/loqalabs/loqa-voice/internal/intent"
	"github.com/loqalabs/loqa-voice/internal/protocol"
	"github.com/loqalabs/loqa-voice/internal/runtime"
	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"
)

var version = "0.1.0-dev"

const usage = `usage: loqa-voicectl <command> [flags]

commands:
  press <button>     publish button_pressed (talk, play_pause, volume_up, volume_down)
  play <query...>    ask the daemon to resolve and play a song
  wake [score]       send one wake detector score (default 1.0)
  watch              print mirrored events until interrupted
  validate           check intents and songs files
  version            print version`

type connFlags struct {
	server  string
	token   string
	prefix  string
	timeout time.Duration
}

func (c *connFlags) register(fs *pflag.FlagSet) {
	def := config.Default().Bus
	fs.StringVarP(&c.server, "server", "s", def.Servers[0], "NATS server URL")
	fs.StringVar(&c.token, "token", "", "NATS auth token")
	fs.StringVar(&c.prefix, "prefix", def.SubjectPrefix, "Subject prefix used by the daemon")
	fs.DurationVar(&c.timeout, "timeout", 2*time.Second, "Connect timeout")
}

func (c *connFlags) connect(ctx context.Context, log *slog.Logger) (*bus.Client, error) {
	cfg := config.BusConfig{
		Servers:        strings.Split(c.server, ","),
		Token:          c.token,
		ConnectTimeout: int(c.timeout / time.Millisecond),
	}
	return bus.Connect(ctx, cfg, "loqa-voicectl", log)
}

func (c *connFlags) subject(parts ...string) string {
	return strings.Join(append([]string{c.prefix}, parts...), ".")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	log, _ := runtime.NewLogger(os.Stderr, "text", "warn")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "press":
		err = runPress(ctx, args, log)
	case "play":
		err = runPlay(ctx, args, log)
	case "wake":
		err = runWake(ctx, args, log)
	case "watch":
		err = runWatch(ctx, args, log)
	case "validate":
		err = runValidate(args)
	case "version":
		fmt.Println(version)
	case "help", "-h", "--help":
		fmt.Println(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s\n", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func publish(ctx context.Context, conn connFlags, log *slog.Logger, subject string, payload any) error {
	client, err := conn.connect(ctx, log)
	if err != nil {
		return err
	}
	defer client.Close()
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if err := client.Conn().Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return client.Conn().FlushTimeout(conn.timeout)
}

func runPress(ctx context.Context, args []string, log *slog.Logger) error {
	var conn connFlags
	fs := pflag.NewFlagSet("press", pflag.ExitOnError)
	conn.register(fs)
	_ = fs.Parse(args)
	if fs.NArg() != 1 {
		return errors.New("press expects exactly one button name")
	}
	button := fs.Arg(0)
	switch button {
	case protocol.ButtonTalk, protocol.ButtonPlayPause, protocol.ButtonVolumeUp, protocol.ButtonVolumeDown:
	default:
		return fmt.Errorf("unknown button %q", button)
	}
	return publish(ctx, conn, log,
		conn.subject(protocol.SubjectInputPrefix, protocol.EventButtonPressed),
		protocol.ButtonPressed{Button: button})
}

func runPlay(ctx context.Context, args []string, log *slog.Logger) error {
	var conn connFlags
	fs := pflag.NewFlagSet("play", pflag.ExitOnError)
	conn.register(fs)
	_ = fs.Parse(args)
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return errors.New("play expects a song query")
	}
	return publish(ctx, conn, log,
		conn.subject(protocol.SubjectInputPrefix, protocol.EventPlayRequested),
		protocol.PlayRequested{Query: query})
}

func runWake(ctx context.Context, args []string, log *slog.Logger) error {
	var conn connFlags
	fs := pflag.NewFlagSet("wake", pflag.ExitOnError)
	conn.register(fs)
	_ = fs.Parse(args)
	score := 1.0
	if fs.NArg() > 0 {
		v, err := strconv.ParseFloat(fs.Arg(0), 64)
		if err != nil || v < 0 || v > 1 {
			return fmt.Errorf("score must be a number in [0,1], got %q", fs.Arg(0))
		}
		score = v
	}
	return publish(ctx, conn, log, conn.subject(protocol.SubjectWakeScore), map[string]float64{"confidence": score})
}

func runWatch(ctx context.Context, args []string, log *slog.Logger) error {
	var conn connFlags
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	conn.register(fs)
	filter := fs.String("event", ">", "Event name to watch")
	_ = fs.Parse(args)

	client, err := conn.connect(ctx, log)
	if err != nil {
		return err
	}
	defer client.Close()

	sub, err := client.Conn().Subscribe(conn.subject(protocol.SubjectEventPrefix, *filter), func(msg *nats.Msg) {
		var ev eventbus.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn("undecodable event", slog.String("subject", msg.Subject), slog.String("error", err.Error()))
			return
		}
		payload, _ := json.Marshal(ev.Payload)
		fmt.Printf("%s %-24s %s\n", ev.Timestamp.Format(time.TimeOnly), ev.Name, payload)
	})
	if err != nil {
		return err
	}
	defer func() { _ = sub.Unsubscribe() }()
	<-ctx.Done()
	return nil
}

func runValidate(args []string) error {
	var intentsPath, songsPath string
	fs := pflag.NewFlagSet("validate", pflag.ExitOnError)
	fs.StringVar(&intentsPath, "intents", "", "Path to an intents file")
	fs.StringVar(&songsPath, "songs", "", "Path to a songs file")
	_ = fs.Parse(args)
	if intentsPath == "" && songsPath == "" {
		return errors.New("validate needs --intents and/or --songs")
	}
	if intentsPath != "" {
		defs, err := intent.Load(intentsPath)
		if err != nil {
			return err
		}
		fmt.Printf("intents valid: %d definitions\n", len(defs))
	}
	if songsPath != "" {
		songs, err := catalog.LoadFile(songsPath)
		if err != nil {
			return err
		}
		fmt.Printf("songs valid: %d entries\n", len(songs))
	}
	return nil
}
