// Package watcher reports file changes under a repository root so the
// index can follow edits.
//
// fsnotify is the primary mechanism; polling is the fallback for
// filesystems where it cannot be initialised. Events are debounced so a
// burst of saves becomes one batch, and directories the scanner would skip
// are never watched.
//
//	w, err := watcher.NewHybridWatcher(watcher.Options{Filter: sc})
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	go w.Start(ctx, root)
//	for batch := range w.Events() {
//	    _ = coordinator.HandleEvents(ctx, batch)
//	}
package watcher
