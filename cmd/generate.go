package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// generateCmd spawns every configured server exactly once, persists its
// discovered tool schemas to the cache, and stops it again (spec §6:
// "generate = spawn-each-once-persist-schemas-stop"). It is the offline
// counterpart to lazy discovery: running it ahead of time means `tools/list`
// has a full answer on the very first stdio session.
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Spawn every configured server once and persist its tool schemas to the cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Close()

		manager := rt.newManager()
		defer manager.ShutdownAll(waitGrace)

		ctx := context.Background()
		failed := 0
		for _, name := range rt.cfg().ListServers() {
			tools, err := manager.DiscoverTools(ctx, name)
			if err != nil {
				fmt.Fprintf(os.Stderr, "server %q: %v\n", name, err)
				failed++
				continue
			}
			fmt.Printf("server %q: %d tools\n", name, len(tools))
			if err := manager.StopServer(name); err != nil {
				fmt.Fprintf(os.Stderr, "server %q: failed to stop cleanly: %v\n", name, err)
			}
		}

		if err := rt.cache.Save(); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d servers failed to discover tools", failed, len(rt.cfg().Servers))
		}
		return nil
	},
}
