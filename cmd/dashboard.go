package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/Soflution1/McpHub/internal/dashboard"
)

// dashboardCmd starts the out-of-core-scope REST dashboard for editing
// the server list and settings while the proxy runs elsewhere (spec §6).
var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Start the REST dashboard for managing servers and settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.log.Close()

		addr, _ := cmd.Flags().GetString("addr")
		d := dashboard.New(rt.path, rt.cache)
		rt.log.Infof("dashboard listening on %s", addr)
		fmt.Printf("dashboard listening on %s\n", addr)
		return http.ListenAndServe(addr, d.Engine())
	},
}

func init() {
	dashboardCmd.Flags().String("addr", "127.0.0.1:24681", "address to bind the dashboard HTTP server")
}
