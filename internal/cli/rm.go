package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete a saved locket",
		Args:  cobra.ExactArgs(1),
		Run:   runRm,
	}

	cmd.Flags().Bool("hard", false, "Permanent delete, media included (irreversible)")

	RootCmd.AddCommand(cmd)
}

func runRm(cmd *cobra.Command, args []string) {
	hard, _ := cmd.Flags().GetBool("hard")
	id := args[0]

	cfg := loadConfig()
	arc, st, err := openArchive(cmd.Context(), cfg, newLogger(cfg))
	if err != nil {
		exitErr("open archive", err)
	}
	defer st.Close()

	if err := arc.Delete(cmd.Context(), id, hard); err != nil {
		exitErr("rm", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), `{"ok":true,"id":%q,"hard":%t}`+"\n", id, hard)
}
