package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/vectorflow/external"
	"github.com/xraph/vectorflow/inference"
	"github.com/xraph/vectorflow/job"
	"github.com/xraph/vectorflow/kv"
	"github.com/xraph/vectorflow/source"
	"github.com/xraph/vectorflow/vectorindex"
	"github.com/xraph/vectorflow/workflow"
)

// Workflow names.
const (
	WorkflowEmbedText     = "embed-text"
	WorkflowStoreVector   = "store-vector"
	WorkflowCreateVector  = "create-vector"
	WorkflowDeleteVectors = "delete-vectors"
	WorkflowProcessFile   = "process-file"
	WorkflowSyncItem      = "sync-item"
	WorkflowSyncSource    = "sync-source"
)

// Chunking defaults for file processing.
const (
	DefaultChunkSize = 1000
	DefaultOverlap   = 100
)

// EmbedInput is the input of the embed-text sub-job.
type EmbedInput struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// EmbedOutput is the output of the embed-text sub-job.
type EmbedOutput struct {
	Embedding  []float32 `json:"embedding"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
}

// StoreInput is the input of the store-vector sub-job.
type StoreInput struct {
	ID        string         `json:"id"`
	Namespace string         `json:"namespace,omitempty"`
	Values    []float32      `json:"values"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StoreOutput is the output of the store-vector sub-job. A failed write
// is reported in the output rather than failing the sub-job.
type StoreOutput struct {
	Success  bool   `json:"success"`
	VectorID string `json:"vectorId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// SyncItemInput is the input of a bulk sync child.
type SyncItemInput struct {
	Item      source.Item `json:"item"`
	Namespace string      `json:"namespace,omitempty"`
	Model     string      `json:"model,omitempty"`
}

// ──────────────────────────────────────────────────
// Sub-jobs
// ──────────────────────────────────────────────────

func (s *Service) embedText(wf *workflow.Workflow, in EmbedInput) (EmbedOutput, error) {
	model := cmp.Or(in.Model, s.model)
	res, err := workflow.Step(wf, "embed", func(ctx context.Context) ([]float32, error) {
		return s.embed(ctx, in.Text, model)
	}, workflow.WithRetry(s.retry))
	if err != nil {
		return EmbedOutput{}, err
	}
	return EmbedOutput{Embedding: res.Data, Model: model, Dimensions: len(res.Data)}, nil
}

func (s *Service) storeVector(wf *workflow.Workflow, in StoreInput) (StoreOutput, error) {
	if in.ID == "" {
		return StoreOutput{}, errors.New("vector id is required")
	}
	res, err := workflow.Step(wf, "upsert", func(ctx context.Context) (string, error) {
		v := vectorindex.Vector{ID: in.ID, Values: in.Values, Metadata: in.Metadata}
		return in.ID, s.index.Upsert(ctx, in.Namespace, []vectorindex.Vector{v})
	}, workflow.WithRetry(s.retry), workflow.NonCritical())
	if err != nil {
		return StoreOutput{}, err
	}
	if !res.Success {
		return StoreOutput{Error: res.Error}, nil
	}
	return StoreOutput{Success: true, VectorID: res.Data}, nil
}

// ──────────────────────────────────────────────────
// Job workflows
// ──────────────────────────────────────────────────

// createVector chains the embed and store sub-jobs. A failure of the
// second call does not repeat the first.
func (s *Service) createVector(wf *workflow.Workflow, in CreateVector) (job.Metadata, error) {
	embedID := wf.RunID() + "-embed"
	storeID := wf.RunID() + "-store"

	wf.Progress("embed", 0, 2)
	emb, err := external.Call[EmbedInput, EmbedOutput](wf, s.embedEngine,
		EmbedInput{Text: in.Text, Model: in.Model}, "Embedding", s.callOptions(embedID)...)
	if err != nil {
		return job.Metadata{}, err
	}
	if emb == nil || len(emb.Embedding) == 0 {
		return job.Metadata{}, fmt.Errorf("failed to embed text: %w", inference.ErrNoEmbedding)
	}

	wf.Progress("store", 1, 2)
	vectorID := cmp.Or(in.VectorID, wf.Run().JobID, wf.RunID())
	stored, err := external.Call[StoreInput, StoreOutput](wf, s.storeEngine, StoreInput{
		ID:        vectorID,
		Namespace: s.namespaceOr(in.Namespace),
		Values:    emb.Embedding,
		Metadata:  in.Metadata,
	}, "Vector", s.callOptions(storeID)...)
	if err != nil {
		return job.Metadata{}, err
	}
	if stored == nil || !stored.Success {
		reason := "Unknown error"
		if stored != nil && stored.Error != "" {
			reason = stored.Error
		}
		return job.Metadata{}, fmt.Errorf("Failed to save vector: %s", reason)
	}

	wf.Progress("done", 2, 2)
	return job.Metadata{
		VectorID:   cmp.Or(stored.VectorID, vectorID),
		Dimensions: len(emb.Embedding),
		SubJobIDs:  []string{embedID, storeID},
	}, nil
}

func (s *Service) deleteVectors(wf *workflow.Workflow, in DeleteVectors) (job.Metadata, error) {
	res, err := workflow.Step(wf, "delete", func(ctx context.Context) (int, error) {
		return s.index.DeleteByIDs(ctx, s.namespaceOr(in.Namespace), in.IDs)
	}, workflow.WithRetry(s.retry))
	if err != nil {
		return job.Metadata{}, err
	}
	return job.Metadata{Count: res.Data, VectorIDs: in.IDs}, nil
}

func (s *Service) processFile(wf *workflow.Workflow, in ProcessFile) (job.Metadata, error) {
	ns := s.namespaceOr(in.Namespace)
	model := cmp.Or(in.Model, s.model)
	overlap := in.Overlap
	if in.ChunkSize == 0 && overlap == 0 {
		overlap = DefaultOverlap
	}
	chunks := Chunk(in.Text, cmp.Or(in.ChunkSize, DefaultChunkSize), overlap)
	if len(chunks) == 0 {
		return job.Metadata{}, fmt.Errorf("file %s has no text", in.FileName)
	}
	total := len(chunks) + 2
	countKey := "file:" + ns + ":" + in.FileName + ":chunks"

	wf.Progress("replace-existing", 0, total)
	if _, err := workflow.When(wf, "replace-existing",
		func(context.Context) (bool, error) { return in.ReplaceExisting, nil },
		func(ctx context.Context) (int, error) {
			prev, err := s.chunkCount(ctx, countKey)
			if err != nil || prev == 0 {
				return 0, err
			}
			return s.index.DeleteByIDs(ctx, ns, chunkIDs(in.FileName, prev))
		}, workflow.WithRetry(s.retry)); err != nil {
		return job.Metadata{}, err
	}

	wf.Progress("embed", 1, total)
	tasks := make([]workflow.Task[[]float32], len(chunks))
	for i, text := range chunks {
		tasks[i] = workflow.Task[[]float32]{
			Name: fmt.Sprintf("embed:chunk:%d", i),
			Fn: func(ctx context.Context) ([]float32, error) {
				return s.embed(ctx, text, model)
			},
			Options: []workflow.StepOption{workflow.WithRetry(s.retry), workflow.NonCritical()},
		}
	}
	results, err := workflow.Parallel(wf, tasks...)
	if err != nil {
		return job.Metadata{}, err
	}

	vectors := make([]vectorindex.Vector, 0, len(results))
	failed := 0
	for i, res := range results {
		if !res.Success {
			failed++
			wf.Logger().Warn("chunk embedding failed, skipping",
				slog.String("file", in.FileName),
				slog.Int("chunk", i),
				slog.String("error", res.Error),
			)
			continue
		}
		vectors = append(vectors, vectorindex.Vector{
			ID:     chunkID(in.FileName, i),
			Values: res.Data,
			Metadata: map[string]any{
				"fileName": in.FileName,
				"chunk":    i,
				"text":     chunks[i],
			},
		})
	}
	if len(vectors) == 0 {
		return job.Metadata{}, fmt.Errorf("no chunk of %s could be embedded", in.FileName)
	}

	wf.Progress("upsert", total-1, total)
	if err := wf.Step("upsert", func(ctx context.Context) error {
		return s.index.Upsert(ctx, ns, vectors)
	}, workflow.WithRetry(s.retry)); err != nil {
		return job.Metadata{}, err
	}
	if err := wf.Step("record-chunks", func(ctx context.Context) error {
		return s.kv.Put(ctx, countKey, []byte(strconv.Itoa(len(chunks))))
	}, workflow.WithRetry(s.retry)); err != nil {
		return job.Metadata{}, err
	}
	wf.Progress("done", total, total)

	ids := make([]string, len(vectors))
	for i, v := range vectors {
		ids[i] = v.ID
	}
	return job.Metadata{
		Count:      len(vectors),
		VectorIDs:  ids,
		Dimensions: len(vectors[0].Values),
		Extra: map[string]any{
			"fileName":     in.FileName,
			"chunks":       len(chunks),
			"failedChunks": failed,
		},
	}, nil
}

func (s *Service) syncItemWorkflow(wf *workflow.Workflow, in SyncItemInput) (job.Metadata, error) {
	return s.syncItem(wf, "", in.Item, s.namespaceOr(in.Namespace), cmp.Or(in.Model, s.model))
}

// syncItem embeds each non-empty property of item as its own vector, or
// removes the item's vectors when it is archived. A property that fails
// to embed is skipped. Step names are prefixed so several items can run
// in one workflow.
func (s *Service) syncItem(wf *workflow.Workflow, prefix string, item source.Item, ns, model string) (job.Metadata, error) {
	props := slices.Sorted(maps.Keys(item.Properties))
	allIDs := make([]string, len(props))
	for i, p := range props {
		allIDs[i] = propertyID(item.ID, p)
	}

	removed, err := workflow.When(wf, prefix+"remove",
		func(context.Context) (bool, error) { return item.Archived, nil },
		func(ctx context.Context) (int, error) {
			if len(allIDs) == 0 {
				return 0, nil
			}
			return s.index.DeleteByIDs(ctx, ns, allIDs)
		}, workflow.WithRetry(s.retry))
	if err != nil {
		return job.Metadata{}, err
	}
	if removed != nil {
		return job.Metadata{Count: removed.Data, Extra: map[string]any{"archived": true}}, nil
	}

	var tasks []workflow.Task[[]float32]
	var embedded []string
	for _, p := range props {
		text := strings.TrimSpace(item.Properties[p])
		if text == "" {
			continue
		}
		embedded = append(embedded, p)
		tasks = append(tasks, workflow.Task[[]float32]{
			Name: prefix + "embed:" + p,
			Fn: func(ctx context.Context) ([]float32, error) {
				return s.embed(ctx, text, model)
			},
			Options: []workflow.StepOption{workflow.WithRetry(s.retry), workflow.NonCritical()},
		})
	}
	results, err := workflow.Parallel(wf, tasks...)
	if err != nil {
		return job.Metadata{}, err
	}

	var vectors []vectorindex.Vector
	var skipped []string
	for i, res := range results {
		p := embedded[i]
		if !res.Success {
			skipped = append(skipped, p)
			wf.Logger().Warn("property embedding failed, skipping",
				slog.String("item", item.ID),
				slog.String("property", p),
				slog.String("error", res.Error),
			)
			continue
		}
		vectors = append(vectors, vectorindex.Vector{
			ID:     propertyID(item.ID, p),
			Values: res.Data,
			Metadata: map[string]any{
				"itemId":   item.ID,
				"property": p,
			},
		})
	}

	if len(vectors) > 0 {
		if err := wf.Step(prefix+"upsert", func(ctx context.Context) error {
			return s.index.Upsert(ctx, ns, vectors)
		}, workflow.WithRetry(s.retry)); err != nil {
			return job.Metadata{}, err
		}
	}

	meta := job.Metadata{Count: len(vectors)}
	for _, v := range vectors {
		meta.VectorIDs = append(meta.VectorIDs, v.ID)
	}
	if len(skipped) > 0 {
		meta.Extra = map[string]any{"skipped": skipped}
	}
	return meta, nil
}

// syncSource processes every item changed since the stored cursor and
// then advances the cursor to the newest item seen.
func (s *Service) syncSource(wf *workflow.Workflow, in Sync) (job.Metadata, error) {
	ns := s.namespaceOr(in.Namespace)
	model := cmp.Or(in.Model, s.model)
	cursorKey := "sync:cursor:" + ns

	since, err := workflow.Step(wf, "load-cursor", func(ctx context.Context) (time.Time, error) {
		if in.Full {
			return time.Time{}, nil
		}
		return s.cursor(ctx, cursorKey)
	}, workflow.WithRetry(s.retry))
	if err != nil {
		return job.Metadata{}, err
	}

	items, err := workflow.Step(wf, "fetch", func(ctx context.Context) ([]source.Item, error) {
		return s.source.Fetch(ctx, since.Data)
	}, workflow.WithRetry(s.retry))
	if err != nil {
		return job.Metadata{}, err
	}

	total := len(items.Data)
	latest := since.Data
	vectors := 0
	archived := 0
	for i, item := range items.Data {
		wf.Progress("item:"+item.ID, i, total)
		meta, err := s.syncItem(wf, fmt.Sprintf("item:%d:%s:", i, item.ID), item, ns, model)
		if err != nil {
			return job.Metadata{}, err
		}
		if item.Archived {
			archived++
		} else {
			vectors += meta.Count
		}
		if item.UpdatedAt.After(latest) {
			latest = item.UpdatedAt
		}
	}

	if err := wf.Step("advance-cursor", func(ctx context.Context) error {
		if latest.IsZero() {
			return nil
		}
		return s.kv.Put(ctx, cursorKey, []byte(latest.UTC().Format(time.RFC3339Nano)))
	}, workflow.WithRetry(s.retry)); err != nil {
		return job.Metadata{}, err
	}
	wf.Progress("done", total, total)

	meta := job.Metadata{
		Count:      vectors,
		TotalItems: total,
		Extra:      map[string]any{"archived": archived},
	}
	if !latest.IsZero() {
		meta.Extra["cursor"] = latest.UTC().Format(time.RFC3339Nano)
	}
	return meta, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func (s *Service) embed(ctx context.Context, text, model string) ([]float32, error) {
	v, err := s.embedder.Embed(ctx, text, model)
	if err != nil {
		return nil, err
	}
	if len(v) == 0 {
		return nil, inference.ErrNoEmbedding
	}
	return v, nil
}

func (s *Service) callOptions(instanceID string) []external.Option {
	cfg := s.eng.Config()
	return []external.Option{
		external.WithInstanceID(instanceID),
		external.WithTimeout(cfg.External.Timeout),
		external.WithPollInterval(cfg.External.PollInterval),
		external.WithPollRetry(s.retry),
		external.WithCreateRetry(s.retry),
	}
}

func (s *Service) chunkCount(ctx context.Context, key string) (int, error) {
	b, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(b))
}

func (s *Service) cursor(ctx context.Context, key string) (time.Time, error) {
	b, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(b))
}

// Chunk splits text into windows of at most size runes, each starting
// size-overlap runes after the previous one. Blank windows are dropped.
func Chunk(text string, size, overlap int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}
	runes := []rune(text)
	step := size - overlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

func chunkID(fileName string, i int) string { return fmt.Sprintf("%s#%d", fileName, i) }

func chunkIDs(fileName string, n int) []string {
	ids := make([]string, n)
	for i := range n {
		ids[i] = chunkID(fileName, i)
	}
	return ids
}

func propertyID(itemID, property string) string { return itemID + "#" + property }
