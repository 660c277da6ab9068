package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sdeery14/personal-ai-assistant-sub000/internal/embedding"
	"github.com/sdeery14/personal-ai-assistant-sub000/internal/search"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search active memories by keyword and similarity",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().IntP("limit", "l", search.DefaultLimit, "Max results")
	cmd.Flags().Float64("min-similarity", search.DefaultMinSimilarity, "Semantic match floor")

	RootCmd.AddCommand(cmd)
}

func runSearch(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	minSim, _ := cmd.Flags().GetFloat64("min-similarity")
	query := strings.Join(args, " ")

	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		exitErr("embedding", err)
	}

	s, _ := openStore()
	defer s.Close()

	searcher := search.New(s, emb, nil, search.WithLimit(limit), search.WithMinSimilarity(minSim))
	results, err := searcher.SearchSimilarOrKeyword(cmd.Context(), getUser(), query)
	if err != nil {
		exitErr("search", err)
	}

	if len(results) == 0 {
		fmt.Println("[]")
		return
	}
	printJSON(results)
}
