// internal/storage/memory.go
package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/models"
)

// MemoryStore is a mutex-guarded CaseStore with the same claim and version
// semantics as the postgres store. Used in tests and local runs.
type MemoryStore struct {
	mu              sync.Mutex
	questionnaires  map[string]*models.Questionnaire
	workItems       map[string]*models.WorkItem
	recommendations map[string]*models.RecommendationResult
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		questionnaires:  make(map[string]*models.Questionnaire),
		workItems:       make(map[string]*models.WorkItem),
		recommendations: make(map[string]*models.RecommendationResult),
	}
}

func (s *MemoryStore) SaveQuestionnaire(_ context.Context, q *models.Questionnaire) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.questionnaires {
		if existing.CustomerID == q.CustomerID {
			existing.IsLatest = false
		}
	}
	q.IsLatest = true
	s.questionnaires[q.ID] = copyQuestionnaire(q)
	return nil
}

func (s *MemoryStore) QuestionnaireByID(_ context.Context, id string) (*models.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questionnaires[id]
	if !ok {
		return nil, errors.NewNotFound("questionnaire", id)
	}
	return copyQuestionnaire(q), nil
}

func (s *MemoryStore) LatestQuestionnaire(_ context.Context, customerID string) (*models.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, q := range s.questionnaires {
		if q.CustomerID == customerID && q.IsLatest {
			return copyQuestionnaire(q), nil
		}
	}
	return nil, errors.NewNotFound("questionnaire", customerID)
}

func (s *MemoryStore) QuestionnaireHistory(_ context.Context, customerID string) ([]*models.Questionnaire, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Questionnaire
	for _, q := range s.questionnaires {
		if q.CustomerID == customerID {
			out = append(out, copyQuestionnaire(q))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) UpdateQuestionnaireScore(_ context.Context, id string, score int, category models.RiskCategory, breakdown models.ScoreBreakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questionnaires[id]
	if !ok {
		return errors.NewNotFound("questionnaire", id)
	}
	q.Score = score
	q.Category = category
	q.Breakdown = breakdown
	return nil
}

func (s *MemoryStore) CreateWorkItem(_ context.Context, item *models.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.workItems[item.ID] = copyWorkItem(item)
	return nil
}

func (s *MemoryStore) WorkItemByID(_ context.Context, id string) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.workItems[id]
	if !ok {
		return nil, errors.NewNotFound("work item", id)
	}
	return copyWorkItem(item), nil
}

func (s *MemoryStore) ClaimWorkItem(_ context.Context, id, reviewerID string) (*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.workItems[id]
	if !ok {
		return nil, errors.NewNotFound("work item", id)
	}
	if item.ReviewerID != nil && *item.ReviewerID != reviewerID {
		return nil, errors.NewAlreadyClaimed(id)
	}
	if item.ReviewerID == nil {
		rid := reviewerID
		item.ReviewerID = &rid
		item.Version++
		item.UpdatedAt = time.Now().UTC()
	}
	return copyWorkItem(item), nil
}

func (s *MemoryStore) UpdateWorkItem(_ context.Context, item *models.WorkItem, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.workItems[item.ID]
	if !ok {
		return errors.NewNotFound("work item", item.ID)
	}
	if stored.Version != expectedVersion {
		return errors.NewStaleVersion(item.ID, expectedVersion)
	}
	item.Version = expectedVersion + 1
	item.UpdatedAt = time.Now().UTC()
	s.workItems[item.ID] = copyWorkItem(item)
	return nil
}

func (s *MemoryStore) PendingWorkItems(_ context.Context, status models.Status) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.WorkItem
	for _, item := range s.workItems {
		if item.Status == status {
			out = append(out, copyWorkItem(item))
		}
	}
	sortPending(out)
	return out, nil
}

func (s *MemoryStore) WorkItemsByReviewer(_ context.Context, reviewerID string) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.WorkItem
	for _, item := range s.workItems {
		if item.ReviewerID != nil && *item.ReviewerID == reviewerID && !item.Status.Terminal() {
			out = append(out, copyWorkItem(item))
		}
	}
	sortPending(out)
	return out, nil
}

func (s *MemoryStore) OverdueWorkItems(_ context.Context, now time.Time) ([]*models.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.WorkItem
	for _, item := range s.workItems {
		if !item.Status.Terminal() && item.SLADeadline.Before(now) {
			out = append(out, copyWorkItem(item))
		}
	}
	sortPending(out)
	return out, nil
}

func (s *MemoryStore) CountWorkItemsByStatus(_ context.Context) (map[models.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[models.Status]int)
	for _, item := range s.workItems {
		counts[item.Status]++
	}
	return counts, nil
}

func (s *MemoryStore) SaveRecommendation(_ context.Context, r *models.RecommendationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.recommendations {
		if existing.CustomerID == r.CustomerID {
			existing.IsLatest = false
		}
	}
	r.IsLatest = true
	s.recommendations[r.ID] = copyRecommendation(r)
	return nil
}

func (s *MemoryStore) LatestRecommendation(_ context.Context, customerID string) (*models.RecommendationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.recommendations {
		if r.CustomerID == customerID && r.IsLatest {
			return copyRecommendation(r), nil
		}
	}
	return nil, errors.NewNotFound("recommendation", customerID)
}

func (s *MemoryStore) RecommendationHistory(_ context.Context, customerID string) ([]*models.RecommendationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.RecommendationResult
	for _, r := range s.recommendations {
		if r.CustomerID == customerID {
			out = append(out, copyRecommendation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// sortPending orders by priority descending, then creation time ascending.
// Priority dominates recency; within equal priority strict FIFO.
func sortPending(items []*models.WorkItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Priority.Rank() != items[j].Priority.Rank() {
			return items[i].Priority.Rank() > items[j].Priority.Rank()
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

func copyQuestionnaire(q *models.Questionnaire) *models.Questionnaire {
	out := *q
	out.Answers = make(map[string]string, len(q.Answers))
	for k, v := range q.Answers {
		out.Answers[k] = v
	}
	if q.Age != nil {
		age := *q.Age
		out.Age = &age
	}
	return &out
}

func copyWorkItem(item *models.WorkItem) *models.WorkItem {
	out := *item
	if item.ReviewerID != nil {
		rid := *item.ReviewerID
		out.ReviewerID = &rid
	}
	out.Decisions = make([]models.StageDecision, len(item.Decisions))
	copy(out.Decisions, item.Decisions)
	return &out
}

func copyRecommendation(r *models.RecommendationResult) *models.RecommendationResult {
	out := *r
	if r.WorkItemID != nil {
		wid := *r.WorkItemID
		out.WorkItemID = &wid
	}
	out.Items = make([]models.AllocationItem, len(r.Items))
	copy(out.Items, r.Items)
	return &out
}
