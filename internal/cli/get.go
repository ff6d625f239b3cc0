package cli

import (
	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/archive"
	"github.com/rcliao/reunify/internal/locket"
)

func init() {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Retrieve a saved locket",
		Args:  cobra.ExactArgs(1),
		Run:   runGet,
	}

	cmd.Flags().String("image-out", "", "Write the image to this file")
	cmd.Flags().String("audio-out", "", "Write the voice note to this file")
	cmd.Flags().Bool("link", false, "Print the fragment share link instead of metadata")

	RootCmd.AddCommand(cmd)
}

func runGet(cmd *cobra.Command, args []string) {
	imageOut, _ := cmd.Flags().GetString("image-out")
	audioOut, _ := cmd.Flags().GetString("audio-out")
	asLink, _ := cmd.Flags().GetBool("link")

	cfg := loadConfig()
	arc, st, err := openArchive(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	l, saved, err := arc.Load(cmd.Context(), args[0])
	if err != nil {
		exitErr("get", err)
	}
	if err := writeMedia(l, imageOut, audioOut); err != nil {
		exitErr("write media", err)
	}

	if asLink {
		link, err := locket.Link(cfg.BaseURL+"/", l)
		if err != nil {
			exitErr("encode", err)
		}
		printJSON(map[string]string{"link": link, "short_link": archive.ShortLink(cfg.BaseURL, saved.ID)})
		return
	}
	printJSON(saved)
}
