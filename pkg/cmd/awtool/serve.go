package main

import (
	"github.com/spf13/cobra"

	"github.com/gilchrisn/mcps-experiments/pkg/api"
)

var serveAddress string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the generated tables and plots with a JSON API over the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		parser, err := newParser(cmd)
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		opts := api.ServerOptions{
			Address:        cfg.ServerAddress(),
			TablesDir:      tablesDir(),
			PlotsDir:       plotsDir(),
			AllowedOrigins: cfg.AllowedOrigins(),
		}
		if serveAddress != "" {
			opts.Address = serveAddress
		}
		router := api.NewRouter(st, parser, opts, logger)
		return api.Serve(cmd.Context(), router, opts, logger)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddress, "address", "", "listen address (default from configuration)")
}
