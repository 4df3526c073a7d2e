// attune-chat is a terminal client: it dials the realtime voice API, runs the
// conversation engine with the detection pipeline, and prints the transcript
// and chart summaries.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/attune-app/attune/pkg/chart"
	"github.com/attune-app/attune/pkg/conversation"
	"github.com/attune-app/attune/pkg/detect"
	"github.com/attune-app/attune/pkg/voice"
)

const (
	defaultBaseURL = "http://127.0.0.1:9090"

	// maxChartLines caps the chart summary printed after each detection pass.
	maxChartLines = 8
)

type chatConfig struct {
	BaseURL      string
	APIKey       string
	UserID       string
	Persona      string
	DetectURL    string
	DetectAPIKey string
	GeminiAPIKey string
	GeminiModel  string
}

func parseChatConfig(args []string, getenv func(string) string) (chatConfig, error) {
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := chatConfig{}
	fs := flag.NewFlagSet("attune-chat", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.BaseURL, "base-url", defaultBaseURL, "voice API base URL")
	fs.StringVar(&cfg.APIKey, "api-key", strings.TrimSpace(getenv("ATTUNE_VOICE_API_KEY")), "voice API key (or ATTUNE_VOICE_API_KEY)")
	fs.StringVar(&cfg.UserID, "user", "local", "user id for this session")
	fs.StringVar(&cfg.Persona, "persona", "", "optional system persona")
	fs.StringVar(&cfg.DetectURL, "detect-url", strings.TrimSpace(getenv("ATTUNE_DETECT_BASE_URL")), "detection service base URL (or ATTUNE_DETECT_BASE_URL)")

	if err := fs.Parse(args); err != nil {
		return chatConfig{}, err
	}

	cfg.DetectAPIKey = strings.TrimSpace(getenv("ATTUNE_DETECT_API_KEY"))
	cfg.GeminiAPIKey = strings.TrimSpace(getenv("GEMINI_API_KEY"))
	cfg.GeminiModel = strings.TrimSpace(getenv("ATTUNE_GEMINI_MODEL"))

	if strings.TrimSpace(cfg.BaseURL) == "" {
		return chatConfig{}, fmt.Errorf("base-url must not be empty")
	}
	return cfg, nil
}

// buildDetector prefers the HTTP classifier, falls back to Gemini, and
// returns nil when neither is configured.
func buildDetector(ctx context.Context, cfg chatConfig) (detect.Pipeline, error) {
	if cfg.DetectURL != "" {
		opts := []detect.HTTPOption{}
		if cfg.DetectAPIKey != "" {
			opts = append(opts, detect.WithAPIKey(cfg.DetectAPIKey))
		}
		return detect.NewHTTPClient(cfg.DetectURL, opts...)
	}
	if cfg.GeminiAPIKey != "" {
		return detect.NewGeminiClassifier(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	}
	return nil, nil
}

// terminalSink renders engine events as plain lines on stdout.
type terminalSink struct {
	out io.Writer
}

func (s terminalSink) MessageAdded(m conversation.Message) {
	s.printMessage(m)
}

func (s terminalSink) MessageUpdated(m conversation.Message) {
	s.printMessage(m)
}

func (s terminalSink) MessageRemoved(string) {}

func (s terminalSink) printMessage(m conversation.Message) {
	switch {
	case m.Recording:
		fmt.Fprintln(s.out, "[recording...]")
	case m.Processing:
		fmt.Fprintln(s.out, "[processing...]")
	case m.Thinking:
		fmt.Fprintln(s.out, "[thinking...]")
	case m.Role == conversation.RoleUser:
		fmt.Fprintf(s.out, "you: %s\n", m.Text)
	default:
		fmt.Fprintf(s.out, "attune: %s\n", m.Text)
	}
}

func (s terminalSink) StateChanged(state conversation.State) {
	fmt.Fprintf(s.out, "-- %s\n", state)
}

func (s terminalSink) PartialTranscript(text string) {
	fmt.Fprintf(s.out, "  ~ %s\n", text)
}

func (s terminalSink) InsightsChanged(in conversation.Insights) {
	fmt.Fprintf(s.out, "-- insights: %d emotions, %d parts, %d needs\n",
		in.Emotions, in.Parts, in.Needs)
	bubbles := chart.Bubbles(in.Items, chart.MetricFrequency, chart.DefaultSizeConfig(), time.Now())
	sort.Slice(bubbles, func(i, j int) bool { return bubbles[i].Radius > bubbles[j].Radius })
	for i, b := range bubbles {
		if i == maxChartLines {
			fmt.Fprintf(s.out, "   ... and %d more\n", len(bubbles)-maxChartLines)
			break
		}
		fmt.Fprintf(s.out, "   %-8s %-20s x%d (r=%.0f)\n", b.Kind, b.Label, b.Frequency, b.Radius)
	}
}

func (s terminalSink) Alert(msg string) {
	fmt.Fprintf(s.out, "!! %s\n", msg)
}

func runChat(ctx context.Context, cfg chatConfig, in io.Reader, out io.Writer, logger *slog.Logger) error {
	detector, err := buildDetector(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build detector: %w", err)
	}
	if detector == nil {
		fmt.Fprintln(out, "(detection disabled: set ATTUNE_DETECT_BASE_URL or GEMINI_API_KEY)")
	}

	engine := conversation.New(conversation.Dependencies{
		Sink:     terminalSink{out: out},
		Detector: detector,
		Logger:   logger,
	})
	defer engine.Close()

	client, err := voice.NewClient(voice.Config{
		BaseURL:                cfg.BaseURL,
		APIKey:                 cfg.APIKey,
		UserID:                 cfg.UserID,
		Persona:                cfg.Persona,
		WantPartialTranscripts: true,
		ClientName:             "attune-chat",
	})
	if err != nil {
		return err
	}
	session, err := client.Connect(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	fmt.Fprintf(out, "connected (session %s)\n", session.ID())
	fmt.Fprintln(out, "commands: /listen  /stop  /quit  (anything else is sent as text)")

	runDone := make(chan error, 1)
	go func() {
		runDone <- voice.Run(session, voice.Handler{
			OnListeningStarted: engine.OnListeningStart,
			OnListeningStopped: engine.OnListeningStop,
			OnTranscript:       engine.OnTranscript,
			OnResponseStart:    engine.OnResponseStart,
			OnResponseDelta: func(_, text string) {
				engine.OnResponseStreaming(text)
			},
			OnResponseFinal: func(_, text string) {
				engine.OnResponse(text)
			},
			OnResponseComplete: engine.OnResponseComplete,
			OnWarning: func(code, message string) {
				fmt.Fprintf(out, "!! warning: %s (%s)\n", message, code)
			},
			OnError: func(code, message string) {
				engine.OnError(fmt.Errorf("%s (%s)", message, code))
			},
		})
	}()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-runDone:
			return err
		case line, ok := <-lines:
			if !ok {
				_ = session.EndSession()
				return <-runDone
			}
			line = strings.TrimSpace(line)
			switch {
			case line == "":
			case line == "/quit":
				_ = session.EndSession()
				return <-runDone
			case line == "/listen":
				if err := session.StartListening(); err != nil {
					return err
				}
			case line == "/stop":
				if err := session.StopListening(); err != nil {
					return err
				}
			default:
				engine.SubmitText(line)
				if err := session.SendMessage(line); err != nil {
					return err
				}
			}
		}
	}
}

func runMain(ctx context.Context, args []string, in io.Reader, out, stderr io.Writer) int {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(stderr, "attune-chat: load .env: %v\n", err)
		return 1
	}

	cfg, err := parseChatConfig(args, os.Getenv)
	if err != nil {
		fmt.Fprintf(stderr, "attune-chat: %v\n", err)
		return 1
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if err := runChat(ctx, cfg, in, out, logger); err != nil {
		fmt.Fprintf(stderr, "attune-chat: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
