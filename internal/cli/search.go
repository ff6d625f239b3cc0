package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/reunify/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search saved lockets by letter text",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	query := strings.Join(args, " ")

	s, err := openStore(loadConfig())
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	results, err := s.Search(cmd.Context(), store.SearchParams{
		Query: query,
		Limit: limit,
	})
	if err != nil {
		exitErr("search", err)
	}

	printLockets(os.Stdout, results)
}
