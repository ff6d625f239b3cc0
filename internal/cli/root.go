// Package cli implements the reunify CLI commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/blob"
	"github.com/rcliao/reunify/internal/config"
	"github.com/rcliao/reunify/internal/generation"
	"github.com/rcliao/reunify/internal/letter"
	"github.com/rcliao/reunify/internal/logging"
	"github.com/rcliao/reunify/internal/model"
	"github.com/rcliao/reunify/internal/store"
)

var (
	dbPath     string
	configPath string
	formatFlag string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "reunify",
	Short: "Bring two photos together and share them as a locket",
	Long: "Reunify blends two photos into one picture with an image model, writes a letter to go with it, " +
		"and packs both (plus an optional voice note) into a shareable link.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $REUNIFY_DB or ~/.reunify/reunify.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (default: $REUNIFY_CONFIG)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
}

// loadConfig resolves defaults, config file, environment, then flags.
func loadConfig() *config.Config {
	path := configPath
	if path == "" {
		path = os.Getenv("REUNIFY_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		exitErr("load config", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	return cfg
}

func newLogger(cfg *config.Config) logging.Logger {
	return logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
}

func newGenerator(cfg *config.Config, log logging.Logger) *generation.GeminiClient {
	return generation.NewGeminiClient(generation.GeminiOptions{
		BaseURL:    cfg.Gemini.BaseURL,
		ImageModel: cfg.Gemini.ImageModel,
		TextModel:  cfg.Gemini.TextModel,
		Timeout:    cfg.Gemini.Timeout,
		Logger:     log,
	})
}

func openStore(cfg *config.Config) (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DBPath)
}

func openBlobs(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	switch cfg.Blob.Backend {
	case "s3":
		return blob.NewS3Store(ctx, blob.S3Options{
			Bucket:    cfg.Blob.S3.Bucket,
			Region:    cfg.Blob.S3.Region,
			Endpoint:  cfg.Blob.S3.Endpoint,
			AccessKey: cfg.Blob.S3.AccessKey,
			SecretKey: cfg.Blob.S3.SecretKey,
			PathStyle: cfg.Blob.S3.PathStyle,
		})
	default:
		return blob.NewFSStore(cfg.Blob.Dir)
	}
}

// openArchive opens the store and blob backend. The caller closes the
// returned store.
func openArchive(ctx context.Context, cfg *config.Config, log logging.Logger) (*archive.Archive, *store.SQLiteStore, error) {
	st, err := openStore(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("open blob store: %w", err)
	}
	return archive.New(st, blobs, log), st, nil
}

// textInput returns the joined args, or stdin when it is piped.
func textInput(args []string) (string, error) {
	if len(args) > 0 {
		return strings.Join(args, " "), nil
	}
	stat, _ := os.Stdin.Stat()
	if stat != nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return "", nil
}

func printJSON(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

// printLockets renders rows in the selected output format.
func printLockets(w io.Writer, lockets []model.SavedLocket) {
	if formatFlag != "text" {
		if len(lockets) == 0 {
			fmt.Fprintln(w, "[]")
			return
		}
		b, _ := json.MarshalIndent(lockets, "", "  ")
		fmt.Fprintln(w, string(b))
		return
	}
	for _, l := range lockets {
		audio := ""
		if l.AudioKey != "" {
			audio = " [voice]"
		}
		fmt.Fprintf(w, "%s  %s  %s%s\n", l.ID, l.CreatedAt.Format("2006-01-02"), letter.Excerpt(l.Letter, 60), audio)
	}
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
