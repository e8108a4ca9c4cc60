package main

import (
	"github.com/franckalain/fooddeclare/internal/export"
	"github.com/franckalain/fooddeclare/internal/pipeline"
	"github.com/franckalain/fooddeclare/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and websocket server",
	RunE:  runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("port", "", "port to listen on")
	f.String("static-dir", "", "directory of the web client")
	f.Bool("debug", false, "debug mode")

	_ = v.BindPFlag("server.port", f.Lookup("port"))
	_ = v.BindPFlag("server.static_dir", f.Lookup("static-dir"))
	_ = v.BindPFlag("server.debug", f.Lookup("debug"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.loadModel(ctx); err != nil {
		return err
	}

	gate := accessGate(cfg)
	log.Info().
		Str("store", cfg.Store.Type).
		Str("model", cfg.ML.Model).
		Bool("access_gate", gate != nil).
		Msg("Components ready")

	srv := server.New(server.Deps{
		Items:       a.items,
		Prefs:       a.prefs,
		Resolver:    a.dispatcher(),
		Reconciler:  pipeline.NewReconciler(),
		Scans:       a.db,
		Exporter:    export.NewPDFExporter(),
		Advisor:     a.advisor(),
		Gate:        gate,
		Camera:      cameraConstraints(cfg),
		JPEGQuality: cfg.Camera.JPEGQuality,
	}, cfg.Server.StaticDir, cfg.Server.Debug)

	return srv.Start(ctx, cfg.Server.Port)
}
