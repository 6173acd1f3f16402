package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"coi-notes-be/internal/controller"
	"coi-notes-be/internal/dto"
	"coi-notes-be/pkg/stream"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	baseURL     string
	token       string
	projectId   string
	quickCreate bool
	searchOn    bool
	modelTier   string
	rawOutput   bool
)

var rootCmd = &cobra.Command{
	Use:   "streamcli [message]",
	Short: "Send a chat turn and render the generation stream",
	Long: `Posts a chat message to the notes backend and renders the NDJSON
stream as it arrives. Use --quick-create to start a new project from the message.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         runStream,
}

func init() {
	_ = godotenv.Load()

	rootCmd.Flags().StringVar(&baseURL, "url", envOr("STREAMCLI_URL", "http://localhost:3000/api"), "API base URL")
	rootCmd.Flags().StringVar(&token, "token", os.Getenv("STREAMCLI_TOKEN"), "bearer token")
	rootCmd.Flags().StringVarP(&projectId, "project", "p", os.Getenv("STREAMCLI_PROJECT"), "project id")
	rootCmd.Flags().BoolVarP(&quickCreate, "quick-create", "q", false, "create a new project from the message")
	rootCmd.Flags().BoolVar(&searchOn, "search", false, "enable web search grounding")
	rootCmd.Flags().StringVar(&modelTier, "tier", "fast", "model tier (fast or pro)")
	rootCmd.Flags().BoolVar(&rawOutput, "raw", false, "print records as received")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runStream(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	message := args[0]
	prefs := &dto.ChatPreferencesDTO{ModelTier: modelTier, SearchEnabled: searchOn}

	var (
		path string
		body any
	)
	if quickCreate {
		path = "/project/v1/quick-create"
		body = dto.QuickCreateRequest{Message: message, Preferences: prefs}
	} else {
		id, err := uuid.Parse(projectId)
		if err != nil {
			return fmt.Errorf("invalid project id %q: %w", projectId, err)
		}
		path = "/chat/v1/stream"
		body = dto.StreamChatRequest{ProjectId: id, Message: message, Preferences: prefs}
	}

	resp, err := sendRequest(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		color.Red("❌ %s", resp.Status)
		prettyPrint(b)
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	if proto := resp.Header.Get(controller.HeaderStreamProtocol); proto != stream.ProtocolName {
		color.Yellow("⚠️  unexpected stream protocol %q", proto)
	}

	return render(resp.Body)
}

func sendRequest(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func render(r io.Reader) error {
	dec := stream.NewDecoder(r)
	inText := false
	endText := func() {
		if inText {
			fmt.Println()
			inText = false
		}
	}

	for {
		rec, err := dec.Next()
		if errors.Is(err, io.EOF) {
			endText()
			return stream.ErrNoTerminalRecord
		}
		if err != nil {
			endText()
			return err
		}

		if rawOutput {
			b, _ := json.Marshal(rec)
			fmt.Println(string(b))
			if rec.Type == stream.RecordFinal || rec.Type == stream.RecordError {
				return nil
			}
			continue
		}

		switch rec.Type {
		case stream.RecordText:
			fmt.Print(rec.Text)
			inText = true
		case stream.RecordPhase:
			endText()
			color.Yellow("── %s", rec.Phase)
		case stream.RecordEvent:
			endText()
			color.Cyan("📨 %s", rec.Name)
			prettyPrint(rec.Data)
		case stream.RecordError:
			endText()
			color.Red("❌ %s: %s", rec.Code, rec.Message)
			return fmt.Errorf("stream failed: %s", rec.Code)
		case stream.RecordFinal:
			endText()
			color.Green("✅ final")
			prettyPrint(rec.Data)
			return nil
		}
	}
}

func prettyPrint(data []byte) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.String())
}
