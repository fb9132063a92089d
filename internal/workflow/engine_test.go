// internal/workflow/engine_test.go
package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"suitability-pipeline/internal/authz"
	"suitability-pipeline/internal/common/config"
	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
	"suitability-pipeline/internal/recommend"
	"suitability-pipeline/internal/storage"
)

type fakeRecommender struct {
	mu       sync.Mutex
	requests []recommend.Request
	err      error
}

func (f *fakeRecommender) Recommend(_ context.Context, req recommend.Request) (*models.RecommendationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	wid := req.WorkItemID
	return &models.RecommendationResult{
		ID:         "reco-" + req.CustomerID,
		CustomerID: req.CustomerID,
		WorkItemID: &wid,
		Items: []models.AllocationItem{
			{ProductID: "prod-1", ProductName: "Fund", Category: req.Category, Amount: req.Amount, Percent: 100},
		},
		TotalAmount:     req.Amount,
		AllocatedAmount: req.Amount,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

type capturingNotifier struct {
	mu       sync.Mutex
	decided  []string
	approved []bool
	recos    []string
}

func (n *capturingNotifier) ReviewDecided(_ context.Context, customerID string, approved bool) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, customerID)
	n.approved = append(n.approved, approved)
	return nil
}

func (n *capturingNotifier) RecommendationGenerated(_ context.Context, customerID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.recos = append(n.recos, customerID)
	return nil
}

type fixture struct {
	engine      *Engine
	store       *storage.MemoryStore
	recommender *fakeRecommender
	notifier    *capturingNotifier
	now         time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       storage.NewMemoryStore(),
		recommender: &fakeRecommender{},
		notifier:    &capturingNotifier{},
		now:         time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}
	auth := authz.NewStaticAuthorizer(map[string]authz.Role{
		"rev-jr":  authz.RoleJuniorReviewer,
		"rev-jr2": authz.RoleJuniorReviewer,
		"rev-mid": authz.RoleMidReviewer,
		"rev-sr":  authz.RoleSeniorReviewer,
		"rev-com": authz.RoleCommittee,
		"rev-adm": authz.RoleAdmin,
	})
	cfg := config.WorkflowConfig{
		SLAHours:      config.DefaultSLAHours(),
		PriorityBands: config.DefaultPriorityBands(),
	}
	f.engine = NewEngine(f.store, auth, f.recommender, f.notifier, cfg, logger.NewNoOpLogger()).
		WithClock(func() time.Time { return f.now })
	return f
}

func (f *fixture) seedQuestionnaire(t *testing.T, customerID string, amount float64) {
	t.Helper()
	require.NoError(t, f.store.SaveQuestionnaire(context.Background(), &models.Questionnaire{
		ID:           "q-" + customerID,
		CustomerID:   customerID,
		Answers:      map[string]string{"invest_time": "5", "max_loss": "20"},
		InvestAmount: amount,
		CreatedAt:    f.now,
	}))
}

func TestCreate_PriorityAndDeadline(t *testing.T) {
	f := newFixture(t)

	item, err := f.engine.Create(context.Background(), "cust-001", 85, models.RiskAggressive)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingJunior, item.Status)
	assert.Equal(t, models.PriorityCritical, item.Priority)
	assert.Equal(t, f.now.Add(2*time.Hour), item.SLADeadline)
	assert.Nil(t, item.ReviewerID)

	tests := []struct {
		score    int
		priority models.Priority
	}{
		{80, models.PriorityCritical},
		{79, models.PriorityHigh},
		{60, models.PriorityHigh},
		{59, models.PriorityMedium},
		{40, models.PriorityMedium},
		{39, models.PriorityLow},
		{0, models.PriorityLow},
	}
	for _, tt := range tests {
		got, err := f.engine.Create(context.Background(), "cust-x", tt.score, models.RiskModerate)
		require.NoError(t, err)
		assert.Equal(t, tt.priority, got.Priority, "score %d", tt.score)
	}
}

func TestCreate_RejectsOutOfRangeScore(t *testing.T) {
	f := newFixture(t)

	for _, score := range []int{-1, 101} {
		_, err := f.engine.Create(context.Background(), "cust-001", score, models.RiskModerate)
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.CodeInvalidScore))
	}
}

func TestClaim_RoleGateAndConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)

	// Wrong role for the junior stage.
	_, err = f.engine.Claim(ctx, item.ID, "rev-sr")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	claimed, err := f.engine.Claim(ctx, item.ID, "rev-jr")
	require.NoError(t, err)
	assert.Equal(t, "rev-jr", *claimed.ReviewerID)
	assert.Equal(t, models.StatusPendingJunior, claimed.Status)
	assert.Equal(t, item.SLADeadline, claimed.SLADeadline)

	// Same reviewer again is a no-op; a different one conflicts.
	_, err = f.engine.Claim(ctx, item.ID, "rev-jr")
	require.NoError(t, err)
	_, err = f.engine.Claim(ctx, item.ID, "rev-jr2")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeAlreadyClaimed))
}

func TestClaim_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, reviewer := range []string{"rev-jr", "rev-jr2"} {
		wg.Add(1)
		go func(r string) {
			defer wg.Done()
			_, err := f.engine.Claim(ctx, item.ID, r)
			results <- err
		}(reviewer)
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
		} else if errors.HasCode(err, errors.CodeAlreadyClaimed) {
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestAdvance_RejectIsTerminalFromAnyStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)
	deadline := item.SLADeadline

	rejected, err := f.engine.Advance(ctx, item.ID, "rev-jr", models.DecisionReject, "insufficient documentation")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)
	// No next stage, so no SLA recompute.
	assert.Equal(t, deadline, rejected.SLADeadline)

	d, ok := rejected.DecisionFor(models.StageJunior)
	require.True(t, ok)
	assert.Equal(t, models.DecisionReject, d.Decision)
	assert.Equal(t, "insufficient documentation", d.Comment)

	// Nothing moves out of a terminal state.
	_, err = f.engine.Advance(ctx, item.ID, "rev-jr", models.DecisionApprove, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTerminalState))
	_, err = f.engine.Claim(ctx, item.ID, "rev-jr")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTerminalState))

	assert.Equal(t, []string{"cust-001"}, f.notifier.decided)
	assert.Equal(t, []bool{false}, f.notifier.approved)
	assert.Empty(t, f.recommender.requests)
}

func TestAdvance_FullApprovalChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedQuestionnaire(t, "cust-001", 250000)

	item, err := f.engine.Create(ctx, "cust-001", 72, models.RiskAggressive)
	require.NoError(t, err)

	steps := []struct {
		reviewer string
		status   models.Status
		sla      time.Duration
	}{
		{"rev-jr", models.StatusPendingMid, 4 * time.Hour},
		{"rev-mid", models.StatusPendingSenior, 8 * time.Hour},
		{"rev-sr", models.StatusPendingCommittee, 24 * time.Hour},
	}
	for _, step := range steps {
		_, err = f.engine.Claim(ctx, item.ID, step.reviewer)
		require.NoError(t, err)
		advanced, err := f.engine.Advance(ctx, item.ID, step.reviewer, models.DecisionApprove, "ok")
		require.NoError(t, err)
		assert.Equal(t, step.status, advanced.Status)
		// Next stage starts unclaimed with a fresh deadline.
		assert.Nil(t, advanced.ReviewerID)
		assert.Equal(t, f.now.Add(step.sla), advanced.SLADeadline)
	}

	final, err := f.engine.Advance(ctx, item.ID, "rev-com", models.DecisionApprove, "committee sign-off")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, final.Status)

	// Decisions cover the full chain in order.
	require.Len(t, final.Decisions, 4)
	wantStages := []models.Stage{models.StageJunior, models.StageMid, models.StageSenior, models.StageCommittee}
	for i, stage := range wantStages {
		assert.Equal(t, stage, final.Decisions[i].Stage)
		assert.Equal(t, models.DecisionApprove, final.Decisions[i].Decision)
	}

	// Exactly one linked recommendation was produced and persisted.
	require.Len(t, f.recommender.requests, 1)
	assert.Equal(t, item.ID, f.recommender.requests[0].WorkItemID)
	assert.Equal(t, 72, f.recommender.requests[0].Score)
	assert.InDelta(t, 250000, f.recommender.requests[0].Amount, 0.001)

	saved, err := f.store.LatestRecommendation(ctx, "cust-001")
	require.NoError(t, err)
	require.NotNil(t, saved.WorkItemID)
	assert.Equal(t, item.ID, *saved.WorkItemID)

	assert.Equal(t, []bool{true}, f.notifier.approved)
	assert.Equal(t, []string{"cust-001"}, f.notifier.recos)
}

func TestAdvance_UnauthorizedRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)

	_, err = f.engine.Advance(ctx, item.ID, "rev-com", models.DecisionApprove, "")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeUnauthorized))

	// Admin may decide at any stage.
	advanced, err := f.engine.Advance(ctx, item.ID, "rev-adm", models.DecisionApprove, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingMid, advanced.Status)
}

func TestAdvance_ConcurrentDecisionsSingleTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Advance(ctx, item.ID, "rev-jr", models.DecisionApprove, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var successes int
	for err := range results {
		if err == nil {
			successes++
		} else {
			// The loser either hit the version check or re-read the item
			// after it had already moved past the junior stage.
			assert.True(t,
				errors.HasCode(err, errors.CodeStaleVersion) ||
					errors.HasCode(err, errors.CodeTerminalState) ||
					errors.HasCode(err, errors.CodeUnauthorized),
				"unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)

	got, err := f.store.WorkItemByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingMid, got.Status)
	assert.Len(t, got.Decisions, 1)
}

func TestAdvance_RecommendationFailureDoesNotRevertApproval(t *testing.T) {
	f := newFixture(t)
	f.recommender.err = errors.NewNoEligibleProducts("MODERATE", 50)
	ctx := context.Background()
	f.seedQuestionnaire(t, "cust-001", 50000)

	item, err := f.engine.Create(ctx, "cust-001", 50, models.RiskModerate)
	require.NoError(t, err)
	for _, reviewer := range []string{"rev-jr", "rev-mid", "rev-sr", "rev-com"} {
		item, err = f.engine.Advance(ctx, item.ID, reviewer, models.DecisionApprove, "")
		require.NoError(t, err)
	}
	assert.Equal(t, models.StatusApproved, item.Status)

	_, err = f.store.LatestRecommendation(ctx, "cust-001")
	assert.True(t, errors.HasCode(err, errors.CodeNotFound))
	assert.Equal(t, []bool{true}, f.notifier.approved)
	assert.Empty(t, f.notifier.recos)
}

func TestPendingAtStage_Ordering(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lowFirst, err := f.engine.Create(ctx, "cust-a", 10, models.RiskConservative)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	critOld, err := f.engine.Create(ctx, "cust-b", 90, models.RiskAggressive)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	critNew, err := f.engine.Create(ctx, "cust-c", 95, models.RiskAggressive)
	require.NoError(t, err)

	pending, err := f.engine.PendingAtStage(ctx, models.StageJunior)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, critOld.ID, pending[0].ID)
	assert.Equal(t, critNew.ID, pending[1].ID)
	assert.Equal(t, lowFirst.ID, pending[2].ID)
}

func TestOverdue_ReportsBreachedNonTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	breached, err := f.engine.Create(ctx, "cust-a", 50, models.RiskModerate)
	require.NoError(t, err)
	rejected, err := f.engine.Create(ctx, "cust-b", 50, models.RiskModerate)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, rejected.ID, "rev-jr", models.DecisionReject, "no")
	require.NoError(t, err)

	// Past the junior SLA for both, but the rejected one is terminal.
	f.now = f.now.Add(3 * time.Hour)

	overdue, err := f.engine.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, breached.ID, overdue[0].ID)

	// Breach flags the item; it does not move it.
	got, err := f.store.WorkItemByID(ctx, breached.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingJunior, got.Status)
}

func TestStats_CountsByStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedQuestionnaire(t, "cust-b", 10000)

	_, err := f.engine.Create(ctx, "cust-a", 50, models.RiskModerate)
	require.NoError(t, err)

	item, err := f.engine.Create(ctx, "cust-b", 50, models.RiskModerate)
	require.NoError(t, err)
	for _, reviewer := range []string{"rev-jr", "rev-mid", "rev-sr", "rev-com"} {
		item, err = f.engine.Advance(ctx, item.ID, reviewer, models.DecisionApprove, "")
		require.NoError(t, err)
	}

	rejected, err := f.engine.Create(ctx, "cust-c", 50, models.RiskModerate)
	require.NoError(t, err)
	_, err = f.engine.Advance(ctx, rejected.ID, "rev-jr", models.DecisionReject, "")
	require.NoError(t, err)

	stats, err := f.engine.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pending)
	assert.Equal(t, 1, stats.Approved)
	assert.Equal(t, 1, stats.Rejected)
	assert.Equal(t, 1, stats.ByStatus[models.StatusPendingJunior])
}
