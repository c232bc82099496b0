package index

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/amanctx/internal/chunk"
	amerrors "github.com/Aman-CERP/amanctx/internal/errors"
	"github.com/Aman-CERP/amanctx/internal/scanner"
	"github.com/Aman-CERP/amanctx/internal/store"
	"github.com/Aman-CERP/amanctx/internal/ui"
)

// FileResult is the outcome for one file of a run. A file fails when it
// produced no records or none of its records were stored.
type FileResult struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Records  int    `json:"records"`
	Indexed  int    `json:"indexed"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// OK reports whether the file counts as indexed.
func (f FileResult) OK() bool { return f.Records > 0 && f.Indexed > 0 }

// RunResult summarises a directory run.
type RunResult struct {
	Scope         string        `json:"scope"`
	Files         []FileResult  `json:"files"`
	FilesIndexed  int           `json:"filesIndexed"`
	FilesFailed   int           `json:"filesFailed"`
	Records       int           `json:"records"`
	RecordsFailed int           `json:"recordsFailed"`
	Duration      time.Duration `json:"duration"`
}

func (r *RunResult) stats(timings ui.StageTimings) ui.CompletionStats {
	return ui.CompletionStats{
		Scope:         r.Scope,
		Files:         len(r.Files),
		FilesFailed:   r.FilesFailed,
		Records:       r.Records,
		RecordsFailed: r.RecordsFailed,
		Duration:      r.Duration,
		Errors:        r.RecordsFailed,
		Warnings:      r.FilesFailed,
		Stages:        timings,
	}
}

// fileItems ties a file to the work items it produced.
type fileItems struct {
	result FileResult
	items  []WorkItem
}

// IndexCodeFiles scans root, chunks every accepted file through the
// chunking service and indexes the chunks under scope. A chunker failure
// for one file is logged and counted; the run continues.
func (p *Pipeline) IndexCodeFiles(ctx context.Context, scope, repo, root string) (*RunResult, error) {
	if p.chunker == nil || p.codeScanner == nil {
		return nil, fmt.Errorf("code indexing requires a chunker and a code scanner")
	}
	if scope == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "scope is required", nil)
	}

	start := time.Now()
	var timings ui.StageTimings

	files, err := p.scan(ctx, p.codeScanner, root)
	if err != nil {
		return nil, err
	}
	timings.Scan = time.Since(start)

	chunkStart := time.Now()
	perFile := p.chunkFiles(ctx, scope, repo, files)
	timings.Chunk = time.Since(chunkStart)

	indexStart := time.Now()
	res := p.indexFiles(ctx, scope, perFile)
	timings.Index = time.Since(indexStart)
	res.Duration = time.Since(start)

	p.renderer.Complete(res.stats(timings))
	slog.Info("index_code_complete",
		slog.String("scope", scope),
		slog.Int("files", len(res.Files)),
		slog.Int("files_failed", res.FilesFailed),
		slog.Int("chunks", res.Records),
		slog.Duration("duration", res.Duration))
	return res, ctx.Err()
}

// IndexFile chunks and indexes a single file, then removes chunks the
// file no longer produces. The watcher calls it for changed files.
func (p *Pipeline) IndexFile(ctx context.Context, scope, repo string, f scanner.FileInfo) FileResult {
	if p.chunker == nil {
		return FileResult{Path: f.Path, Error: "no chunker configured"}
	}
	fi := p.chunkFile(ctx, scope, repo, f)
	res := p.indexFiles(ctx, scope, []*fileItems{fi})
	out := res.Files[0]
	if !out.OK() {
		return out
	}

	keep := make([]string, 0, len(fi.items))
	for _, it := range fi.items {
		keep = append(keep, it.Code.Identity)
	}
	if _, err := p.store.DeleteFileChunks(ctx, scope, f.Path, keep); err != nil {
		p.logger.Warn("stale_chunk_prune_failed",
			slog.String("file", f.Path),
			slog.String("error", err.Error()))
	}
	return out
}

// RemoveFile deletes every chunk stored for the file.
func (p *Pipeline) RemoveFile(ctx context.Context, scope, relPath string) (int, error) {
	return p.store.DeleteFileChunks(ctx, scope, relPath, nil)
}

// IndexDocsDir indexes every markdown file under root as a complete
// document. The document ID is the slash-separated relative path and the
// title is the first level-one heading, else the file name.
func (p *Pipeline) IndexDocsDir(ctx context.Context, scope, repo, root string) (*RunResult, error) {
	if p.docScanner == nil {
		return nil, fmt.Errorf("document indexing requires a document scanner")
	}
	if scope == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "scope is required", nil)
	}

	start := time.Now()
	var timings ui.StageTimings

	files, err := p.scan(ctx, p.docScanner, root)
	if err != nil {
		return nil, err
	}
	timings.Scan = time.Since(start)

	perFile := p.readDocs(scope, repo, files)

	indexStart := time.Now()
	res := p.indexFiles(ctx, scope, perFile)
	timings.Index = time.Since(indexStart)
	res.Duration = time.Since(start)

	p.renderer.Complete(res.stats(timings))
	slog.Info("index_docs_complete",
		slog.String("scope", scope),
		slog.Int("documents", res.Records),
		slog.Int("failed", res.RecordsFailed),
		slog.Duration("duration", res.Duration))
	return res, ctx.Err()
}

// Collector scans directories and turns files into work items. It writes
// nothing, so it can feed the queue while another process owns the store.
type Collector struct {
	chunker     chunk.Chunker
	codeScanner *scanner.Scanner
	docScanner  *scanner.Scanner
	renderer    ui.Renderer
	workers     int
	logger      *slog.Logger
}

// NewCollector builds a collector from the file-related dependencies.
// Store and Embedder are ignored.
func NewCollector(deps Dependencies) *Collector {
	if deps.Renderer == nil {
		deps.Renderer = ui.Nop()
	}
	if deps.Workers <= 0 {
		deps.Workers = runtime.NumCPU()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Collector{
		chunker:     deps.Chunker,
		codeScanner: deps.CodeScanner,
		docScanner:  deps.DocScanner,
		renderer:    deps.Renderer,
		workers:     deps.Workers,
		logger:      deps.Logger,
	}
}

// CollectItems scans root and returns the work items a directory run of
// the given type would index, without indexing them. Files that fail to
// read or chunk contribute no items.
func (c *Collector) CollectItems(ctx context.Context, typ WorkType, scope, repo, root string) ([]WorkItem, error) {
	if scope == "" {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "scope is required", nil)
	}

	var perFile []*fileItems
	switch typ {
	case WorkCode:
		if c.chunker == nil || c.codeScanner == nil {
			return nil, fmt.Errorf("code indexing requires a chunker and a code scanner")
		}
		files, err := c.scan(ctx, c.codeScanner, root)
		if err != nil {
			return nil, err
		}
		perFile = c.chunkFiles(ctx, scope, repo, files)
	case WorkDocument:
		if c.docScanner == nil {
			return nil, fmt.Errorf("document indexing requires a document scanner")
		}
		files, err := c.scan(ctx, c.docScanner, root)
		if err != nil {
			return nil, err
		}
		perFile = c.readDocs(scope, repo, files)
	default:
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "unknown work type "+string(typ), nil)
	}

	var items []WorkItem
	for _, fi := range perFile {
		items = append(items, fi.items...)
	}
	return items, ctx.Err()
}

// readDocs turns each markdown file into one complete document.
func (c *Collector) readDocs(scope, repo string, files []scanner.FileInfo) []*fileItems {
	perFile := make([]*fileItems, 0, len(files))
	for _, f := range files {
		fi := &fileItems{result: FileResult{Path: f.Path, Language: "markdown"}}
		content, err := os.ReadFile(f.AbsPath)
		if err != nil {
			fi.result.Error = fmt.Sprintf("failed to read: %v", err)
			c.renderer.AddError(ui.ErrorEvent{File: f.Path, Err: err, IsWarn: true})
		} else {
			text := string(content)
			fi.items = []WorkItem{NewDocumentItem(&store.Document{
				ScopeID:    scope,
				RepoID:     repo,
				DocumentID: f.Path,
				Title:      markdownTitle(text, f.Path),
				Content:    text,
				Status:     store.StatusComplete,
			})}
		}
		perFile = append(perFile, fi)
	}
	return perFile
}

func (c *Collector) scan(ctx context.Context, s *scanner.Scanner, root string) ([]scanner.FileInfo, error) {
	c.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Message: root})
	files, err := s.Collect(ctx, root)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "failed to scan "+root, err)
	}
	c.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageScanning, Current: len(files), Total: len(files)})
	slog.Info("index_scan_complete", slog.String("root", root), slog.Int("files", len(files)))
	return files, nil
}

// chunkFiles calls the chunking service for each file, bounded by the
// worker limit. Output order matches files.
func (c *Collector) chunkFiles(ctx context.Context, scope, repo string, files []scanner.FileInfo) []*fileItems {
	out := make([]*fileItems, len(files))
	total := len(files)
	var (
		mu   sync.Mutex
		done int
	)

	c.renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageChunking, Total: total})

	g := new(errgroup.Group)
	g.SetLimit(c.workers)
	for i, f := range files {
		if ctx.Err() != nil {
			out[i] = &fileItems{result: FileResult{Path: f.Path, Error: ctx.Err().Error()}}
			continue
		}
		g.Go(func() error {
			out[i] = c.chunkFile(ctx, scope, repo, f)
			mu.Lock()
			done++
			current := done
			mu.Unlock()
			c.renderer.UpdateProgress(ui.ProgressEvent{
				Stage:       ui.StageChunking,
				Current:     current,
				Total:       total,
				CurrentFile: f.Path,
			})
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// chunkFile reads f and turns the chunker's output into work items. Any
// failure yields an empty item list and a recorded error.
func (c *Collector) chunkFile(ctx context.Context, scope, repo string, f scanner.FileInfo) *fileItems {
	language := chunk.InferLanguage(f.Path)
	fi := &fileItems{result: FileResult{Path: f.Path, Language: language}}

	content, err := os.ReadFile(f.AbsPath)
	if err != nil {
		fi.result.Error = fmt.Sprintf("failed to read: %v", err)
		c.renderer.AddError(ui.ErrorEvent{File: f.Path, Err: err, IsWarn: true})
		return fi
	}

	chunks, err := c.chunker.Parse(ctx, language, string(content))
	if err != nil {
		fi.result.Error = err.Error()
		c.renderer.AddError(ui.ErrorEvent{File: f.Path, Err: fmt.Errorf("failed to chunk: %w", err), IsWarn: true})
		c.logger.Warn("file_chunk_failed",
			slog.String("file", f.Path),
			slog.String("language", language),
			slog.String("error", err.Error()))
		return fi
	}

	for _, ch := range chunks {
		fi.items = append(fi.items, NewCodeItem(codeChunkFrom(ch, scope, repo, f.Path, language)))
	}
	return fi
}

// codeChunkFrom maps chunker output onto a record. The chunk's own
// language wins over the one inferred from the path.
func codeChunkFrom(c chunk.Chunk, scope, repo, filePath, language string) *store.CodeChunk {
	if c.Language != "" {
		language = c.Language
	}
	if language == "" {
		language = chunk.LanguageUnknown
	}
	apiName := c.APIName
	if apiName == "" {
		apiName = store.DeriveAPIName(c.ClassName, c.MethodName)
	}
	return &store.CodeChunk{
		ScopeID:    scope,
		RepoID:     repo,
		FilePath:   filePath,
		Language:   language,
		ClassName:  c.ClassName,
		MethodName: c.MethodName,
		APIName:    apiName,
		DocSummary: c.DocSummary,
		Content:    c.Content,
	}
}

// indexFiles flattens the per-file items into one batch and folds the
// per-item outcomes back into per-file results.
func (p *Pipeline) indexFiles(ctx context.Context, scope string, perFile []*fileItems) *RunResult {
	var (
		items []WorkItem
		owner []int
	)
	for fileIdx, fi := range perFile {
		for _, it := range fi.items {
			items = append(items, it)
			owner = append(owner, fileIdx)
		}
		fi.result.Records = len(fi.items)
	}

	var mu sync.Mutex
	p.runBatch(ctx, items, func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		r := &perFile[owner[i]].result
		if err != nil {
			r.Failed++
			if r.Error == "" {
				r.Error = err.Error()
			}
			return
		}
		r.Indexed++
	})

	res := &RunResult{Scope: scope, Files: make([]FileResult, 0, len(perFile))}
	for _, fi := range perFile {
		r := fi.result
		res.Records += r.Indexed
		res.RecordsFailed += r.Records - r.Indexed
		if r.OK() {
			res.FilesIndexed++
		} else {
			res.FilesFailed++
			if r.Error == "" {
				r.Error = "no chunks produced"
			}
		}
		res.Files = append(res.Files, r)
	}
	return res
}

// markdownTitle returns the first "# " heading, else the file name
// without its extension.
func markdownTitle(content, relPath string) string {
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "# ") {
			if title := strings.TrimSpace(strings.TrimPrefix(line, "# ")); title != "" {
				return title
			}
		}
	}
	base := path.Base(relPath)
	return strings.TrimSuffix(base, path.Ext(base))
}
