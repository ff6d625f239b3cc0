package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/archive"
)

func init() {
	cmd := &cobra.Command{
		Use:   "save [letter]",
		Short: "Save a locket behind a short link",
		Long:  "Save a locket server-side. The letter can be --letter, a positional arg or piped via stdin.",
		Run:   runSave,
	}

	cmd.Flags().String("image", "", "Image file (required)")
	cmd.Flags().String("letter", "", "Letter text")
	cmd.Flags().String("audio", "", "Voice note file")
	cmd.Flags().String("ttl", "", "Expire after this long, e.g. 7d, 24h (default: config locket_ttl)")

	cmd.MarkFlagRequired("image")

	RootCmd.AddCommand(cmd)
}

func runSave(cmd *cobra.Command, args []string) {
	imagePath, _ := cmd.Flags().GetString("image")
	audioPath, _ := cmd.Flags().GetString("audio")
	ttl, _ := cmd.Flags().GetString("ttl")

	l, err := readLocket(imagePath, audioPath, letterArg(cmd, args))
	if err != nil {
		exitErr("save", err)
	}

	cfg := loadConfig()
	if ttl == "" {
		ttl = cfg.LocketTTL
	}
	arc, st, err := openArchive(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	saved, err := arc.Save(cmd.Context(), l, ttl)
	if err != nil {
		exitErr("save", err)
	}

	printJSON(map[string]any{
		"ok":         true,
		"id":         saved.ID,
		"link":       archive.ShortLink(cfg.BaseURL, saved.ID),
		"expires_at": saved.ExpiresAt,
	})
}
