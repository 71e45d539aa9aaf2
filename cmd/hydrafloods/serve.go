package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hydrafloods/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the map API and tiles over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := newLogger(cfg)
		if err != nil {
			return err
		}

		application, err := app.NewApplication(cfg, log)
		if err != nil {
			return err
		}
		return application.Serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address, e.g. :8080")
	must(viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr")))
	serveCmd.Flags().String("base-url", "", "public base URL used in tile URLs")
	must(viper.BindPFlag("server.base_url", serveCmd.Flags().Lookup("base-url")))
}
