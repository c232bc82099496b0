// Package preflight runs the checks behind `amanctx doctor`: whether the
// data dir is writable and has room, whether the file descriptor limit
// can carry the watcher and the lexical index, whether another process
// holds the write lock, and whether the embedding and chunking services
// answer.
//
// Service checks only warn. Without an embedder search degrades to
// keyword only, and without a chunker only documents can be indexed.
//
//	results := preflight.New(dataDir, preflight.WithEmbedder(probe)).RunAll(ctx)
//	if preflight.HasCriticalFailures(results) {
//	    // refuse to index
//	}
package preflight
