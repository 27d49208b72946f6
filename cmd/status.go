package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Soflution1/McpHub/internal/tokensaving"
)

// statusCmd prints the configured server list alongside a summary of
// what the persistent schema cache currently knows about them (spec §6).
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print configured servers and a schema cache summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Close()

		cfg := rt.cfg()
		fmt.Printf("config:   %s\n", rt.path)
		fmt.Printf("mode:     %s\n", cfg.Settings.Mode)
		fmt.Printf("cacheDir: %s\n", cfg.Settings.CacheDir)
		fmt.Println()

		full := rt.cache.Full()
		for _, name := range cfg.ListServers() {
			entry := cfg.Servers[name]
			schema, cached := full.Servers[name]
			switch {
			case !cached:
				fmt.Printf("%-24s %-30s not yet discovered\n", name, entry.Command)
			default:
				fmt.Printf("%-24s %-30s %d tools, cached %s\n", name, entry.Command, len(schema.Tools), schema.CachedAt.Format("2006-01-02 15:04:05"))
			}
		}

		est := tokensaving.ForCache(full)
		fmt.Println()
		fmt.Printf("%d tools cached; passthrough ~%d prompt tokens, tool-search ~%d (saves ~%d)\n",
			est.ToolCount, est.PassthroughCost, est.ToolSearchCost, est.Saved)
		return nil
	},
}
