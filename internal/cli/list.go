package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved lockets",
		Run:   runList,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("expired", false, "Include expired lockets")

	RootCmd.AddCommand(cmd)
}

func runList(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	expired, _ := cmd.Flags().GetBool("expired")

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	lockets, err := s.List(cmd.Context(), store.ListParams{
		Limit:          limit,
		IncludeExpired: expired,
	})
	if err != nil {
		exitErr("list", err)
	}

	printLockets(os.Stdout, lockets)
}
