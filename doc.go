// Package swec is a status-page backend engine.
//
// External checkers report up/down observations for named services;
// the engine keeps each checker's spec and bounded status history in
// memory, records every accepted mutation in an append-only journal
// before acknowledging it, and fans committed changes out to live
// subscribers in one global commit order.
//
// The typical lifecycle is:
//
//	eng, err := swec.New(swec.WithDataDir("/var/lib/swec"))
//	if err != nil {
//	    slog.Error("failed to start engine", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	eng.Run(ctx) // blocks until context cancelled
//
// Writes go through [Engine.CreateSpec], [Engine.UpdateSpec],
// [Engine.DeleteSpec] and [Engine.AppendStatus]; reads through
// [Engine.GetSpec], [Engine.GetChecker], [Engine.GetLatest],
// [Engine.GetHistory] and [Engine.ListCheckers]; live updates through
// [Engine.Subscribe], [Engine.Resume] and [Engine.WatchChecker].
//
// The engine performs no network I/O itself. The HTTP gateway in
// internal/server, the REST/websocket client in package client and the
// probing tool in cmd/swec-checker are thin layers around it.
package swec
