// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"suitability-pipeline/internal/common/errors"
	"suitability-pipeline/internal/common/logger"
	"suitability-pipeline/internal/models"
)

// Schema holds the DDL for the pipeline tables. Answers, breakdowns, and
// allocation items are stored as JSONB; stage decisions get their own table
// keyed (work_item_id, stage) so a stage can be decided at most once.
const Schema = `
CREATE TABLE IF NOT EXISTS questionnaires (
	id           VARCHAR(64) PRIMARY KEY,
	customer_id  VARCHAR(64) NOT NULL,
	answers      JSONB NOT NULL DEFAULT '{}',
	age          INTEGER,
	annual_income DOUBLE PRECISION NOT NULL DEFAULT 0,
	invest_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	horizon_years INTEGER NOT NULL DEFAULT 0,
	max_loss     DOUBLE PRECISION NOT NULL DEFAULT 0,
	target       TEXT NOT NULL DEFAULT '',
	score        INTEGER NOT NULL DEFAULT 0,
	category     VARCHAR(32) NOT NULL DEFAULT '',
	breakdown    JSONB NOT NULL DEFAULT '{}',
	is_latest    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_questionnaires_customer ON questionnaires (customer_id, created_at DESC);

CREATE TABLE IF NOT EXISTS work_items (
	id            VARCHAR(64) PRIMARY KEY,
	customer_id   VARCHAR(64) NOT NULL,
	status        VARCHAR(32) NOT NULL,
	priority      VARCHAR(16) NOT NULL,
	priority_rank INTEGER NOT NULL,
	sla_deadline  TIMESTAMPTZ NOT NULL,
	risk_score    INTEGER NOT NULL,
	risk_category VARCHAR(32) NOT NULL,
	reviewer_id   VARCHAR(64),
	version       BIGINT NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items (status, priority_rank DESC, created_at ASC);
CREATE INDEX IF NOT EXISTS idx_work_items_reviewer ON work_items (reviewer_id);

CREATE TABLE IF NOT EXISTS work_item_decisions (
	work_item_id VARCHAR(64) NOT NULL REFERENCES work_items(id),
	stage        VARCHAR(16) NOT NULL,
	reviewer_id  VARCHAR(64) NOT NULL,
	decision     VARCHAR(16) NOT NULL,
	comment      TEXT NOT NULL DEFAULT '',
	decided_at   TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (work_item_id, stage)
);

CREATE TABLE IF NOT EXISTS recommendations (
	id               VARCHAR(64) PRIMARY KEY,
	customer_id      VARCHAR(64) NOT NULL,
	work_item_id     VARCHAR(64),
	items            JSONB NOT NULL DEFAULT '[]',
	total_amount     DOUBLE PRECISION NOT NULL,
	allocated_amount DOUBLE PRECISION NOT NULL,
	expected_return  DOUBLE PRECISION NOT NULL,
	expected_risk    DOUBLE PRECISION NOT NULL,
	rationale        TEXT NOT NULL DEFAULT '',
	is_latest        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_recommendations_customer ON recommendations (customer_id, created_at DESC);
`

// PostgresStore implements CaseStore over database/sql. Claim serialization
// relies on a single conditional UPDATE; advance relies on the version column.
type PostgresStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewPostgresStore(db *sql.DB, log logger.Logger) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"component": "storage"}),
	}
}

// EnsureSchema creates the pipeline tables if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return errors.NewDatabaseQueryFailed("ensure schema", err)
	}
	return nil
}

func (s *PostgresStore) SaveQuestionnaire(ctx context.Context, q *models.Questionnaire) error {
	answers, err := json.Marshal(q.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}
	breakdown, err := json.Marshal(q.Breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseQueryFailed("begin save questionnaire", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE questionnaires SET is_latest = FALSE WHERE customer_id = $1 AND is_latest`,
		q.CustomerID); err != nil {
		return errors.NewDatabaseQueryFailed("unset latest questionnaire", err)
	}

	q.IsLatest = true
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO questionnaires
			(id, customer_id, answers, age, annual_income, invest_amount, horizon_years,
			 max_loss, target, score, category, breakdown, is_latest, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,TRUE,$13)`,
		q.ID, q.CustomerID, answers, q.Age, q.AnnualIncome, q.InvestAmount, q.HorizonYears,
		q.MaxLoss, q.Target, q.Score, string(q.Category), breakdown, q.CreatedAt); err != nil {
		return errors.NewDatabaseQueryFailed("insert questionnaire", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseQueryFailed("commit save questionnaire", err)
	}
	return nil
}

const questionnaireColumns = `id, customer_id, answers, age, annual_income, invest_amount,
	horizon_years, max_loss, target, score, category, breakdown, is_latest, created_at`

func (s *PostgresStore) QuestionnaireByID(ctx context.Context, id string) (*models.Questionnaire, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionnaireColumns+` FROM questionnaires WHERE id = $1`, id)
	q, err := scanQuestionnaire(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("questionnaire", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("get questionnaire", err)
	}
	return q, nil
}

func (s *PostgresStore) LatestQuestionnaire(ctx context.Context, customerID string) (*models.Questionnaire, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+questionnaireColumns+` FROM questionnaires WHERE customer_id = $1 AND is_latest`,
		customerID)
	q, err := scanQuestionnaire(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("questionnaire", customerID)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("get latest questionnaire", err)
	}
	return q, nil
}

func (s *PostgresStore) QuestionnaireHistory(ctx context.Context, customerID string) ([]*models.Questionnaire, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+questionnaireColumns+` FROM questionnaires
		 WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("questionnaire history", err)
	}
	defer rows.Close()

	var out []*models.Questionnaire
	for rows.Next() {
		q, err := scanQuestionnaire(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailed("scan questionnaire", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailed("questionnaire history", err)
	}
	return out, nil
}

func (s *PostgresStore) UpdateQuestionnaireScore(ctx context.Context, id string, score int, category models.RiskCategory, breakdown models.ScoreBreakdown) error {
	raw, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE questionnaires SET score = $1, category = $2, breakdown = $3 WHERE id = $4`,
		score, string(category), raw, id)
	if err != nil {
		return errors.NewDatabaseQueryFailed("update questionnaire score", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("questionnaire", id)
	}
	return nil
}

func (s *PostgresStore) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO work_items
			(id, customer_id, status, priority, priority_rank, sla_deadline,
			 risk_score, risk_category, reviewer_id, version, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		item.ID, item.CustomerID, string(item.Status), string(item.Priority), item.Priority.Rank(),
		item.SLADeadline, item.RiskScore, string(item.RiskCategory), item.ReviewerID,
		item.Version, item.CreatedAt, item.UpdatedAt); err != nil {
		return errors.NewDatabaseQueryFailed("insert work item", err)
	}
	return nil
}

const workItemColumns = `id, customer_id, status, priority, sla_deadline,
	risk_score, risk_category, reviewer_id, version, created_at, updated_at`

func (s *PostgresStore) WorkItemByID(ctx context.Context, id string) (*models.WorkItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id)
	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("work item", id)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("get work item", err)
	}
	if err := s.loadDecisions(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ClaimWorkItem races claimers through one conditional UPDATE. Exactly one
// concurrent claimer matches the unassigned row; the rest see zero rows and
// resolve to ALREADY_CLAIMED or an idempotent success on re-read.
func (s *PostgresStore) ClaimWorkItem(ctx context.Context, id, reviewerID string) (*models.WorkItem, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE work_items
		 SET reviewer_id = $1, version = version + 1, updated_at = now()
		 WHERE id = $2 AND reviewer_id IS NULL`,
		reviewerID, id)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("claim work item", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("claim work item", err)
	}
	item, getErr := s.WorkItemByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	if n == 0 {
		if item.ReviewerID == nil || *item.ReviewerID != reviewerID {
			return nil, errors.NewAlreadyClaimed(id)
		}
		// Same reviewer re-claiming; no-op.
	}
	return item, nil
}

func (s *PostgresStore) UpdateWorkItem(ctx context.Context, item *models.WorkItem, expectedVersion int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseQueryFailed("begin update work item", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE work_items
		 SET status = $1, priority = $2, priority_rank = $3, sla_deadline = $4,
		     reviewer_id = $5, version = $6, updated_at = now()
		 WHERE id = $7 AND version = $8`,
		string(item.Status), string(item.Priority), item.Priority.Rank(), item.SLADeadline,
		item.ReviewerID, expectedVersion+1, item.ID, expectedVersion)
	if err != nil {
		return errors.NewDatabaseQueryFailed("update work item", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewDatabaseQueryFailed("update work item", err)
	}
	if n == 0 {
		return errors.NewStaleVersion(item.ID, expectedVersion)
	}

	for _, d := range item.Decisions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO work_item_decisions (work_item_id, stage, reviewer_id, decision, comment, decided_at)
			 VALUES ($1,$2,$3,$4,$5,$6)
			 ON CONFLICT (work_item_id, stage) DO NOTHING`,
			item.ID, string(d.Stage), d.ReviewerID, string(d.Decision), d.Comment, d.DecidedAt); err != nil {
			return errors.NewDatabaseQueryFailed("insert stage decision", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseQueryFailed("commit update work item", err)
	}
	item.Version = expectedVersion + 1
	return nil
}

func (s *PostgresStore) PendingWorkItems(ctx context.Context, status models.Status) ([]*models.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE status = $1 ORDER BY priority_rank DESC, created_at ASC`, string(status))
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("pending work items", err)
	}
	return s.collectWorkItems(ctx, rows)
}

func (s *PostgresStore) WorkItemsByReviewer(ctx context.Context, reviewerID string) ([]*models.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE reviewer_id = $1 AND status NOT IN ('APPROVED', 'REJECTED')
		 ORDER BY priority_rank DESC, created_at ASC`, reviewerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("work items by reviewer", err)
	}
	return s.collectWorkItems(ctx, rows)
}

func (s *PostgresStore) OverdueWorkItems(ctx context.Context, now time.Time) ([]*models.WorkItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE status NOT IN ('APPROVED', 'REJECTED') AND sla_deadline < $1
		 ORDER BY priority_rank DESC, created_at ASC`, now)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("overdue work items", err)
	}
	return s.collectWorkItems(ctx, rows)
}

func (s *PostgresStore) CountWorkItemsByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM work_items GROUP BY status`)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("count work items", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.NewDatabaseQueryFailed("scan status count", err)
		}
		counts[models.Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailed("count work items", err)
	}
	return counts, nil
}

func (s *PostgresStore) SaveRecommendation(ctx context.Context, r *models.RecommendationResult) error {
	items, err := json.Marshal(r.Items)
	if err != nil {
		return fmt.Errorf("marshal allocation items: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewDatabaseQueryFailed("begin save recommendation", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE recommendations SET is_latest = FALSE WHERE customer_id = $1 AND is_latest`,
		r.CustomerID); err != nil {
		return errors.NewDatabaseQueryFailed("unset latest recommendation", err)
	}

	r.IsLatest = true
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO recommendations
			(id, customer_id, work_item_id, items, total_amount, allocated_amount,
			 expected_return, expected_risk, rationale, is_latest, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,TRUE,$10)`,
		r.ID, r.CustomerID, r.WorkItemID, items, r.TotalAmount, r.AllocatedAmount,
		r.ExpectedReturn, r.ExpectedRisk, r.Rationale, r.CreatedAt); err != nil {
		return errors.NewDatabaseQueryFailed("insert recommendation", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewDatabaseQueryFailed("commit save recommendation", err)
	}
	return nil
}

const recommendationColumns = `id, customer_id, work_item_id, items, total_amount,
	allocated_amount, expected_return, expected_risk, rationale, is_latest, created_at`

func (s *PostgresStore) LatestRecommendation(ctx context.Context, customerID string) (*models.RecommendationResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations WHERE customer_id = $1 AND is_latest`,
		customerID)
	r, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("recommendation", customerID)
	}
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("get latest recommendation", err)
	}
	return r, nil
}

func (s *PostgresStore) RecommendationHistory(ctx context.Context, customerID string) ([]*models.RecommendationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recommendationColumns+` FROM recommendations
		 WHERE customer_id = $1 ORDER BY created_at DESC`, customerID)
	if err != nil {
		return nil, errors.NewDatabaseQueryFailed("recommendation history", err)
	}
	defer rows.Close()

	var out []*models.RecommendationResult
	for rows.Next() {
		r, err := scanRecommendation(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailed("scan recommendation", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailed("recommendation history", err)
	}
	return out, nil
}

func (s *PostgresStore) collectWorkItems(ctx context.Context, rows *sql.Rows) ([]*models.WorkItem, error) {
	defer rows.Close()

	var out []*models.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, errors.NewDatabaseQueryFailed("scan work item", err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewDatabaseQueryFailed("collect work items", err)
	}
	for _, item := range out {
		if err := s.loadDecisions(ctx, item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) loadDecisions(ctx context.Context, item *models.WorkItem) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stage, reviewer_id, decision, comment, decided_at
		 FROM work_item_decisions WHERE work_item_id = $1 ORDER BY decided_at ASC`, item.ID)
	if err != nil {
		return errors.NewDatabaseQueryFailed("load stage decisions", err)
	}
	defer rows.Close()

	item.Decisions = nil
	for rows.Next() {
		var d models.StageDecision
		var stage, decision string
		if err := rows.Scan(&stage, &d.ReviewerID, &decision, &d.Comment, &d.DecidedAt); err != nil {
			return errors.NewDatabaseQueryFailed("scan stage decision", err)
		}
		d.Stage = models.Stage(stage)
		d.Decision = models.Decision(decision)
		item.Decisions = append(item.Decisions, d)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQuestionnaire(row rowScanner) (*models.Questionnaire, error) {
	var q models.Questionnaire
	var answers, breakdown []byte
	var category string
	var age sql.NullInt64
	if err := row.Scan(&q.ID, &q.CustomerID, &answers, &age, &q.AnnualIncome, &q.InvestAmount,
		&q.HorizonYears, &q.MaxLoss, &q.Target, &q.Score, &category, &breakdown,
		&q.IsLatest, &q.CreatedAt); err != nil {
		return nil, err
	}
	if age.Valid {
		v := int(age.Int64)
		q.Age = &v
	}
	q.Category = models.RiskCategory(category)
	if err := json.Unmarshal(answers, &q.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	if err := json.Unmarshal(breakdown, &q.Breakdown); err != nil {
		return nil, fmt.Errorf("unmarshal breakdown: %w", err)
	}
	return &q, nil
}

func scanWorkItem(row rowScanner) (*models.WorkItem, error) {
	var item models.WorkItem
	var status, priority, category string
	var reviewer sql.NullString
	if err := row.Scan(&item.ID, &item.CustomerID, &status, &priority, &item.SLADeadline,
		&item.RiskScore, &category, &reviewer, &item.Version, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	item.Status = models.Status(status)
	item.Priority = models.Priority(priority)
	item.RiskCategory = models.RiskCategory(category)
	if reviewer.Valid {
		item.ReviewerID = &reviewer.String
	}
	return &item, nil
}

func scanRecommendation(row rowScanner) (*models.RecommendationResult, error) {
	var r models.RecommendationResult
	var items []byte
	var workItemID sql.NullString
	if err := row.Scan(&r.ID, &r.CustomerID, &workItemID, &items, &r.TotalAmount,
		&r.AllocatedAmount, &r.ExpectedReturn, &r.ExpectedRisk, &r.Rationale,
		&r.IsLatest, &r.CreatedAt); err != nil {
		return nil, err
	}
	if workItemID.Valid {
		r.WorkItemID = &workItemID.String
	}
	if err := json.Unmarshal(items, &r.Items); err != nil {
		return nil, fmt.Errorf("unmarshal allocation items: %w", err)
	}
	return &r, nil
}
