package cmd

import (
	"github.com/nvr-ai/go-faceid/server"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the classification API over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":5000", "Listen address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command) error {
	engine, err := buildEngine()
	if err != nil {
		return err
	}
	defer engine.Close()

	engine.Profiler().Start()

	srv, err := server.New(cfg.Server, engine, logger)
	if err != nil {
		return err
	}
	return srv.ListenAndServe(cmd.Context())
}
