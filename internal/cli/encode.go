package cli

import (
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/capture"
	"github.com/rcliao/reunify/internal/locket"
	"github.com/rcliao/reunify/internal/model"
)

func init() {
	encodeCmd := &cobra.Command{
		Use:   "encode [letter]",
		Short: "Pack an image, a letter and an optional voice note into a share link",
		Long:  "Pack a locket into a share link. The letter can be --letter, a positional arg or piped via stdin.",
		Run:   runEncode,
	}
	encodeCmd.Flags().String("image", "", "Image file (required)")
	encodeCmd.Flags().String("letter", "", "Letter text")
	encodeCmd.Flags().String("audio", "", "Voice note file")
	encodeCmd.Flags().String("base-url", "", "Page URL the link opens (default: config base_url)")
	encodeCmd.MarkFlagRequired("image")

	decodeCmd := &cobra.Command{
		Use:   "decode <link>",
		Short: "Read a share link",
		Long:  "Print the locket carried by a share link (or a bare #locket- fragment) as JSON.",
		Args:  cobra.ExactArgs(1),
		Run:   runDecode,
	}
	decodeCmd.Flags().String("image-out", "", "Write the image to this file")
	decodeCmd.Flags().String("audio-out", "", "Write the voice note to this file")

	RootCmd.AddCommand(encodeCmd, decodeCmd)
}

// readLocket assembles a locket from files and letter text.
func readLocket(imagePath, audioPath, text string) (model.Locket, error) {
	img, err := capture.ReadImageFile(imagePath)
	if err != nil {
		return model.Locket{}, fmt.Errorf("read %s: %w", imagePath, err)
	}
	l := model.Locket{
		MediaURL:  img.String(),
		MediaType: model.MediaTypeImage,
		Letter:    strings.TrimSpace(text),
	}
	if audioPath != "" {
		b, err := os.ReadFile(audioPath)
		if err != nil {
			return model.Locket{}, fmt.Errorf("read %s: %w", audioPath, err)
		}
		mt := mime.TypeByExtension(strings.ToLower(filepath.Ext(audioPath)))
		if !strings.HasPrefix(mt, "audio/") {
			mt = capture.DefaultAudioType
		}
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		l.AudioURL = model.NewDataURL(mt, b).String()
	}
	return l, locket.Validate(l)
}

func letterArg(cmd *cobra.Command, args []string) string {
	if v, _ := cmd.Flags().GetString("letter"); v != "" {
		return v
	}
	text, err := textInput(args)
	if err != nil {
		exitErr("read stdin", err)
	}
	return text
}

func runEncode(cmd *cobra.Command, args []string) {
	imagePath, _ := cmd.Flags().GetString("image")
	audioPath, _ := cmd.Flags().GetString("audio")
	baseURL, _ := cmd.Flags().GetString("base-url")
	if baseURL == "" {
		baseURL = loadConfig().BaseURL
	}

	l, err := readLocket(imagePath, audioPath, letterArg(cmd, args))
	if err != nil {
		exitErr("encode", err)
	}
	link, err := locket.Link(strings.TrimRight(baseURL, "/")+"/", l)
	if err != nil {
		exitErr("encode", err)
	}
	fmt.Println(link)
}

// fragmentOf extracts the locket fragment from a full link, a /shared?f=
// link or a bare fragment.
func fragmentOf(s string) string {
	s = strings.TrimSpace(s)
	if _, frag, ok := strings.Cut(s, "#"); ok {
		return frag
	}
	if u, err := url.Parse(s); err == nil {
		if f := u.Query().Get("f"); f != "" {
			return f
		}
	}
	return s
}

func runDecode(cmd *cobra.Command, args []string) {
	imageOut, _ := cmd.Flags().GetString("image-out")
	audioOut, _ := cmd.Flags().GetString("audio-out")

	l, err := locket.Decode(fragmentOf(args[0]))
	if err != nil {
		exitErr("decode", fmt.Errorf("%s (%w)", locket.NotFoundMessage, err))
	}
	if err := writeMedia(l, imageOut, audioOut); err != nil {
		exitErr("write media", err)
	}
	printJSON(l)
}

func writeMedia(l model.Locket, imageOut, audioOut string) error {
	write := func(path, dataURL string) error {
		if path == "" || dataURL == "" {
			return nil
		}
		d, err := model.ParseDataURL(dataURL)
		if err != nil {
			return err
		}
		b, err := d.Bytes()
		if err != nil {
			return err
		}
		return os.WriteFile(path, b, 0o644)
	}
	if err := write(imageOut, l.MediaURL); err != nil {
		return err
	}
	return write(audioOut, l.AudioURL)
}
