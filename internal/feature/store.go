package feature

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/automaker/engine/internal/apperr"
	"github.com/automaker/engine/internal/fsutil"
)

// Store is the Feature Store's public contract (spec.md §4.1).
type Store interface {
	List(projectPath string) ([]Feature, error)
	Get(projectPath, id string) (*Feature, error)
	Create(projectPath string, draft Draft) (*Feature, error)
	Update(projectPath, id string, partial Partial) (*Feature, error)
	Delete(projectPath, id string) error
	SetStatus(projectPath, id string, status Status, summary, errMsg *string) (*Feature, error)
	GetAgentOutput(projectPath, id string) (string, error)
}

// FSStore is the filesystem-backed implementation; it is the only
// implementation this engine ships, because the spec explicitly excludes
// a durable queue or distributed persistence (spec.md §1 Non-goals).
type FSStore struct {
	locks *fsutil.KeyedLock
	onWarn func(format string, args ...any)
}

// NewFSStore constructs a Store. onWarn receives non-fatal diagnostics
// (malformed feature.json skipped on list, missing image source files);
// pass nil to discard them.
func NewFSStore(onWarn func(format string, args ...any)) *FSStore {
	if onWarn == nil {
		onWarn = func(string, ...any) {}
	}
	return &FSStore{locks: fsutil.NewKeyedLock(), onWarn: onWarn}
}

func featuresDir(projectPath string) string {
	return filepath.Join(projectPath, ".automaker", "features")
}

func featureDir(projectPath, id string) string {
	return filepath.Join(featuresDir(projectPath), id)
}

func recordPath(projectPath, id string) string {
	return filepath.Join(featureDir(projectPath, id), "feature.json")
}

func imagesDir(projectPath, id string) string {
	return filepath.Join(featureDir(projectPath, id), "images")
}

func agentOutputPath(projectPath, id string) string {
	return filepath.Join(featureDir(projectPath, id), "agent-output.md")
}

// List reads every features/*/feature.json, skipping malformed entries
// with a warning, and sorts by embedded creation timestamp ascending.
func (s *FSStore) List(projectPath string) ([]Feature, error) {
	dir := featuresDir(projectPath)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading features directory", err)
	}

	var out []Feature
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := os.ReadFile(recordPath(projectPath, e.Name()))
		if err != nil {
			s.onWarn("skipping feature %s: %v", e.Name(), err)
			continue
		}
		var f Feature
		if err := json.Unmarshal(data, &f); err != nil {
			s.onWarn("skipping malformed feature.json for %s: %v", e.Name(), err)
			continue
		}
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// Get returns the feature by id, or (nil, nil) if absent.
func (s *FSStore) Get(projectPath, id string) (*Feature, error) {
	data, err := os.ReadFile(recordPath(projectPath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading feature record", err)
	}
	var f Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "parsing feature record", err)
	}
	return &f, nil
}

// NewID assigns a time-ordered, opaque feature identifier.
func NewID() string {
	return fmt.Sprintf("f-%d-%s", time.Now().UTC().UnixNano(), uuid.NewString()[:8])
}

// Create assigns an id if absent, creates the directory, relocates
// referenced images, and writes the record.
func (s *FSStore) Create(projectPath string, draft Draft) (*Feature, error) {
	id := draft.ID
	if id == "" {
		id = NewID()
	}
	unlock := s.locks.Lock(id)
	defer unlock()

	f := Feature{
		ID:              id,
		Description:     draft.Description,
		Category:        draft.Category,
		Priority:        draft.Priority,
		Dependencies:    draft.Dependencies,
		Status:          StatusBacklog,
		SkipTests:       draft.SkipTests,
		Model:           draft.Model,
		ThinkingLevel:   draft.ThinkingLevel,
		ReasoningEffort: draft.ReasoningEffort,
		ImagePaths:      draft.ImagePaths,
		CreatedAt:       time.Now().UTC().Format("2006-01-02T15:04:05.000000000Z07:00"),
	}

	if err := os.MkdirAll(featureDir(projectPath, id), 0755); err != nil {
		return nil, apperr.Wrap(apperr.IO, "creating feature directory", err)
	}

	relocated, err := s.relocateImages(projectPath, id, f.ImagePaths)
	if err != nil {
		return nil, err
	}
	f.ImagePaths = relocated

	if err := s.write(projectPath, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Update performs a read-merge-write of partial onto the stored record.
// Any image paths introduced by partial are relocated under the feature
// directory before persist.
func (s *FSStore) Update(projectPath, id string, partial Partial) (*Feature, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	f, err := s.getLocked(projectPath, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, apperr.Wrap(apperr.NotFound, fmt.Sprintf("feature %s", id), nil)
	}

	applyPartial(f, partial)

	if partial.ImagePaths != nil {
		relocated, err := s.relocateImages(projectPath, id, f.ImagePaths)
		if err != nil {
			return nil, err
		}
		f.ImagePaths = relocated
	}

	if err := s.write(projectPath, f); err != nil {
		return nil, err
	}
	return f, nil
}

func applyPartial(f *Feature, p Partial) {
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.Category != nil {
		f.Category = *p.Category
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.Dependencies != nil {
		f.Dependencies = *p.Dependencies
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.SkipTests != nil {
		f.SkipTests = *p.SkipTests
	}
	if p.Model != nil {
		f.Model = *p.Model
	}
	if p.ThinkingLevel != nil {
		f.ThinkingLevel = *p.ThinkingLevel
	}
	if p.ReasoningEffort != nil {
		f.ReasoningEffort = *p.ReasoningEffort
	}
	if p.StartedAt != nil {
		f.StartedAt = *p.StartedAt
	}
	if p.JustFinishedAt != nil {
		f.JustFinishedAt = *p.JustFinishedAt
	}
	if p.Summary != nil {
		f.Summary = *p.Summary
	}
	if p.Error != nil {
		f.Error = *p.Error
	}
	if p.WorktreePath != nil {
		f.WorktreePath = *p.WorktreePath
	}
	if p.BranchName != nil {
		f.BranchName = *p.BranchName
	}
	if p.BaseBranch != nil {
		f.BaseBranch = *p.BaseBranch
	}
	if p.ImagePaths != nil {
		f.ImagePaths = *p.ImagePaths
	}
	if p.PlanSpec != nil {
		f.PlanSpec = *p.PlanSpec
	}
}

// Delete recursively removes the feature directory. Idempotent.
func (s *FSStore) Delete(projectPath, id string) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	if err := os.RemoveAll(featureDir(projectPath, id)); err != nil {
		return apperr.Wrap(apperr.IO, "deleting feature directory", err)
	}
	return nil
}

// SetStatus is a convenience wrapper over Update. If errMsg is nil the
// prior error field is cleared (spec.md §4.1 + the clearing-semantics
// decision in SPEC_FULL.md §4.5).
func (s *FSStore) SetStatus(projectPath, id string, status Status, summary, errMsg *string) (*Feature, error) {
	cleared := errMsg
	if cleared == nil {
		empty := ""
		cleared = &empty
	}
	var clearedPtr *string
	if *cleared != "" {
		clearedPtr = cleared
	}

	return s.Update(projectPath, id, Partial{
		Status:  &status,
		Summary: ptrToPtr(summary),
		Error:   ptrToPtr(clearedPtr),
	})
}

func ptrToPtr(p *string) **string { return &p }

// GetAgentOutput reads the transcript file. Returns ("", nil) if absent.
func (s *FSStore) GetAgentOutput(projectPath, id string) (string, error) {
	data, err := os.ReadFile(agentOutputPath(projectPath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", apperr.Wrap(apperr.IO, "reading agent output", err)
	}
	return string(data), nil
}

// SelectNextFeature picks the first record whose status is not terminal.
// Callers that need dependency/priority-aware ordering use the
// orchestrator's scheduling policy instead; this is the store-level
// convenience defined in spec.md §4.1.
func SelectNextFeature(features []Feature) *Feature {
	for i := range features {
		if !features[i].Status.IsTerminal() {
			return &features[i]
		}
	}
	return nil
}

func (s *FSStore) getLocked(projectPath, id string) (*Feature, error) {
	data, err := os.ReadFile(recordPath(projectPath, id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperr.Wrap(apperr.IO, "reading feature record", err)
	}
	var f Feature
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, apperr.Wrap(apperr.Invalid, "parsing feature record", err)
	}
	return &f, nil
}

func (s *FSStore) write(projectPath string, f *Feature) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return apperr.Wrap(apperr.Invalid, "marshaling feature record", err)
	}
	if err := fsutil.WriteFileAtomic(recordPath(projectPath, f.ID), data, 0644); err != nil {
		return apperr.Wrap(apperr.IO, "writing feature record", err)
	}
	return nil
}

// relocateImages moves every referenced image path that is not already
// inside the feature's images/ directory into it, appending "-N" before
// the extension on collision. Missing source files are tolerated with a
// warning (spec.md §4.1).
func (s *FSStore) relocateImages(projectPath, id string, refs []ImageRef) ([]ImageRef, error) {
	if len(refs) == 0 {
		return refs, nil
	}
	dir := imagesDir(projectPath, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.IO, "creating images directory", err)
	}

	out := make([]ImageRef, len(refs))
	for i, ref := range refs {
		out[i] = ref
		abs := ref.Path
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(projectPath, abs)
		}
		if strings.HasPrefix(filepath.Clean(abs), filepath.Clean(dir)+string(filepath.Separator)) {
			continue // already relocated
		}
		if _, err := os.Stat(abs); err != nil {
			s.onWarn("image attachment missing, skipping relocation: %s", abs)
			continue
		}
		dest := fsutil.UniquePath(filepath.Join(dir, filepath.Base(abs)))
		if err := os.Rename(abs, dest); err != nil {
			return nil, apperr.Wrap(apperr.IO, "relocating image "+abs, err)
		}
		out[i].Path = dest
	}
	return out, nil
}
