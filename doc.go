// Package spoold exposes the Go APIs behind the single-binary JSON
// ingestion gateway. The server accepts authenticated JSON submissions over
// HTTP and publishes each one atomically into a shared spool directory that
// a downstream consumer drains on its own schedule; the two processes never
// coordinate beyond the filesystem.
//
// # Running a server
//
// The server listens on the network specified by `Config.ListenProto`
// (default `tcp`) and address `Config.Listen`. The spool directory must be
// provisioned before start; the server refuses to create it.
//
//	cfg := spoold.Config{
//	    SpoolDir: "/var/spool/submissions",
//	    Listen:   ":3000",
//	    Secret:   os.Getenv("SPOOLD_SECRET"),
//	}
//	srv, err := spoold.NewServer(cfg)
//	if err != nil { log.Fatal(err) }
//	go func() {
//	    if err := srv.Start(); err != nil {
//	        log.Fatalf("spoold: %v", err)
//	    }
//	}()
//	defer func() {
//	    if err := srv.Shutdown(context.Background()); err != nil {
//	        log.Printf("spoold shutdown: %v", err)
//	    }
//	}()
//
// # The spool protocol
//
// Every accepted payload is streamed to `submission-<id>.json.temp`, synced,
// and then renamed to `submission-<id>.json`. The rename is the publish: a
// consumer scanning the directory either sees a complete submission under
// its final name or nothing at all. Files still carrying the `.temp` suffix
// belong to the gateway and must be skipped.
//
// # Unix domain sockets
//
// For same-host sidecars you can serve over a Unix socket by setting
// `ListenProto` to "unix". Clean-up is automatic.
//
//	cfg := spoold.Config{
//	    SpoolDir:    dir,
//	    ListenProto: "unix",
//	    Listen:      "/var/run/spoold.sock",
//	}
//	srv, stop, err := spoold.StartServer(ctx, cfg)
//	if err != nil { log.Fatal(err) }
//	defer stop(context.Background())
package spoold
