package main

import (
	"github.com/franckalain/fooddeclare/internal/config"
	"github.com/franckalain/fooddeclare/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	v   = viper.New()
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "fooddeclare",
	Short: "Build a customs food declaration from photos and searches",
	Long: `fooddeclare captures food items from a camera, an uploaded photo or a typed
search, asks a recognition service for the product details and keeps the
confirmed items in a declaration list that can be exported as a PDF.

Examples:
  fooddeclare serve --port 8080
  fooddeclare scan --query "Tim Tam original" --commit
  fooddeclare scan --image ./snack.jpg
  fooddeclare export --out declaration.pdf`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		c, err := config.LoadConfig(v, path)
		if err != nil {
			return err
		}
		cfg = c
		logging.Init(cfg.Log.Level, cfg.Log.Pretty)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "path to configuration file (default: $FOODDECLARE_CONFIG, config/config.json or config.json)")
	pf.String("store-type", "", "storage backend: sqlite, file or memory")
	pf.String("store-path", "", "database file (sqlite) or directory (file)")
	pf.String("log-level", "", "log level: debug, info, warn or error")
	pf.Bool("log-pretty", false, "human readable log output")

	_ = v.BindPFlag("store.type", pf.Lookup("store-type"))
	_ = v.BindPFlag("store.path", pf.Lookup("store-path"))
	_ = v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = v.BindPFlag("log.pretty", pf.Lookup("log-pretty"))
}
