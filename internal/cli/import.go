package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/archive"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import saved lockets from JSON",
		Long:  "Import saved lockets from JSON (file or stdin). Expects the format produced by export.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			exitErr("open "+args[0], err)
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		exitErr("read input", err)
	}

	var records []archive.Record
	if err := json.Unmarshal(data, &records); err != nil {
		exitErr("parse json", err)
	}

	cfg := loadConfig()
	arc, st, err := openArchive(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	imported, err := arc.Import(cmd.Context(), records)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"imported":%d}`+"\n", imported)
}
