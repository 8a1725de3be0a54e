// Package watcher keeps an index in step with a folder.
//
// Watcher reports debounced batches of file events using fsnotify, falling
// back to polling where fsnotify cannot be initialised (some network mounts
// and container volumes). Events are filtered the same way a folder ingest
// filters documents: hidden names, .gitignore/.docragignore rules, exclude
// patterns and the extension allow-list.
//
// Syncer consumes the batches and re-ingests created or modified files.
//
//	w, err := watcher.New(opts)
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go func() { _ = w.Start(ctx, root) }()
//	return watcher.NewSyncer(ix, root, logger).Run(ctx, w.Events())
package watcher
