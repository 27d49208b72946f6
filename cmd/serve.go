package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Soflution1/McpHub/internal/childmgr"
	"github.com/Soflution1/McpHub/internal/config"
	"github.com/Soflution1/McpHub/internal/proxy"
)

// runServeStdio is the root command's default action: speak MCP over
// stdio. This is what an editor expects when it launches mcphub as its
// MCP server child process directly.
func runServeStdio(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap()
	if err != nil {
		return err
	}
	defer rt.log.Close()

	manager := rt.newManager()
	defer manager.ShutdownAll(waitGrace)
	defer logToolStats(rt, manager)

	p := proxy.New(manager, rt.cache, rt.newIndex(), rt.settings, rt.log)
	manager.SetOnCacheChange(p.Sync)

	ctx, cancel := signalContext()
	defer cancel()
	go manager.Preload(ctx)
	go backgroundDiscover(ctx, manager, rt)

	closeWatch, err := rt.watchConfig(func(cfg *config.Config) {
		manager.Reload(cfg)
		p.Sync()
		rt.log.Infof("config reloaded from %s", rt.path)
	})
	if err != nil {
		rt.log.Warnf("config file watch disabled: %v", err)
	} else {
		defer closeWatch()
	}

	return p.ServeStdio()
}

// serveCmd runs only the HTTP/SSE transport (spec §6: "serve = HTTP/SSE
// only"), for hosts that connect over the loopback endpoint instead of
// launching mcphub as a stdio child.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP over the loopback HTTP/SSE transport instead of stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Close()

		manager := rt.newManager()
		defer manager.ShutdownAll(waitGrace)
		defer logToolStats(rt, manager)

		p := proxy.New(manager, rt.cache, rt.newIndex(), rt.settings, rt.log)
		manager.SetOnCacheChange(p.Sync)

		ctx, cancel := signalContext()
		defer cancel()
		go manager.Preload(ctx)
		go backgroundDiscover(ctx, manager, rt)

		closeWatch, err := rt.watchConfig(func(cfg *config.Config) {
			manager.Reload(cfg)
			p.Sync()
			rt.log.Infof("config reloaded from %s", rt.path)
		})
		if err != nil {
			rt.log.Warnf("config file watch disabled: %v", err)
		} else {
			defer closeWatch()
		}

		addr, _ := cmd.Flags().GetString("addr")
		rt.log.Infof("serving MCP over SSE on %s", addr)
		return p.ServeSSE(ctx, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", proxy.DefaultSSEAddr, "loopback address to bind the HTTP/SSE transport")
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// backgroundDiscover makes spec §8 scenario (a), "cold start, single
// call", reachable without an operator having to run `mcphub generate`
// first: any configured server with no entry yet in the schema cache is
// discovered in the background, independent of Settings.Preload (which
// only controls whether children are kept warm, not whether they're
// known about at all). A server already in the cache is left alone here;
// Preload/lazy-dial own re-spawning it.
func backgroundDiscover(ctx context.Context, manager *childmgr.Manager, rt *runtime) {
	attempted := 0
	for _, name := range rt.cfg().ListServers() {
		if _, cached := rt.cache.ServerSchema(name); cached {
			continue
		}
		if attempted > 0 {
			select {
			case <-time.After(2 * time.Second):
			case <-ctx.Done():
				return
			}
		}
		attempted++
		if _, err := manager.DiscoverTools(ctx, name); err != nil {
			rt.log.Warnf("background discovery failed for server %q: %v", name, err)
		}
	}
}

// logToolStats reports the in-memory per-tool call counter (spec
// supplement grounded on smart-mcp-proxy-mcpproxy-go's handleToolsStats)
// once at shutdown. It is process-lifetime only, never persisted.
func logToolStats(rt *runtime, manager interface{ ToolStats() map[string]int }) {
	stats := manager.ToolStats()
	if len(stats) == 0 {
		return
	}
	rt.log.Infof("tool call counts this run: %v", stats)
}
