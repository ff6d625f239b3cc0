package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export saved lockets as JSON",
		Long:  "Export every live saved locket, media embedded, as a JSON array.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	arc, st, err := openArchive(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	records, err := arc.Export(cmd.Context())
	if err != nil {
		exitErr("export", err)
	}

	printJSON(records)
}
