package store

import (
	"encoding/json"
	"time"

	"viralforge/internal/score"
	"viralforge/internal/structured"
)

// CandidateStatus tracks a candidate through the pipeline.
type CandidateStatus string

const (
	CandidateNew         CandidateStatus = "new"
	CandidateGatedOut    CandidateStatus = "gated_out"
	CandidateQueued      CandidateStatus = "queued"
	CandidateAnalyzed    CandidateStatus = "analyzed"
	CandidateStrategized CandidateStatus = "strategized"
	CandidateProduced    CandidateStatus = "produced"
	CandidateQuarantined CandidateStatus = "quarantined"
)

// Profile is a tracked account whose typical engagement anchors scoring.
type Profile struct {
	ID          int64           `json:"id"`
	Handle      string          `json:"handle"`
	Platform    string          `json:"platform"`
	Niche       string          `json:"niche,omitempty"`
	DisplayName string          `json:"display_name,omitempty"`
	Baselines   score.Baselines `json:"baselines"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CandidateInput is an observed video as ingested from a source.
type CandidateInput struct {
	ProfileID  int64
	Platform   string
	ExternalID string
	URL        string
	Caption    string
	Author     string
	Views      int64
	Likes      int64
	Comments   int64
	PostedAt   *time.Time
}

// Candidate is an observed video plus its derived score.
type Candidate struct {
	ID                   int64           `json:"id"`
	ProfileID            int64           `json:"profile_id,omitempty"`
	Platform             string          `json:"platform"`
	ExternalID           string          `json:"external_id"`
	URL                  string          `json:"url,omitempty"`
	Caption              string          `json:"caption,omitempty"`
	Author               string          `json:"author,omitempty"`
	Views                int64           `json:"views"`
	Likes                int64           `json:"likes"`
	Comments             int64           `json:"comments"`
	PostedAt             *time.Time      `json:"posted_at,omitempty"`
	NormalizedViews      float64         `json:"normalized_views"`
	NormalizedEngagement float64         `json:"normalized_engagement"`
	Recency              float64         `json:"recency"`
	Score                float64         `json:"score"`
	Passes               bool            `json:"passes"`
	Status               CandidateStatus `json:"status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// Counters returns the raw engagement numbers.
func (c *Candidate) Counters() score.Counters {
	return score.Counters{Views: c.Views, Likes: c.Likes, Comments: c.Comments}
}

// Subject types for structured results.
const (
	SubjectCandidate = "candidate"
	SubjectStrategy  = "strategy"
)

// ResultRecord is a persisted structured.Result.
type ResultRecord struct {
	ID          int64             `json:"id"`
	SubjectType string            `json:"subject_type"`
	SubjectID   int64             `json:"subject_id"`
	Result      structured.Result `json:"result"`
	CreatedAt   time.Time         `json:"created_at"`
}

// StrategyStatus tracks approval of a generated strategy.
type StrategyStatus string

const (
	StrategyPendingApproval StrategyStatus = "pending_approval"
	StrategyApproved        StrategyStatus = "approved"
	StrategyRejected        StrategyStatus = "rejected"
	StrategyProduced        StrategyStatus = "produced"
)

// Strategy is a validated content plan derived from an analyzed candidate.
type Strategy struct {
	ID          int64           `json:"id"`
	CandidateID int64           `json:"candidate_id"`
	ResultID    int64           `json:"result_id,omitempty"`
	Title       string          `json:"title"`
	Payload     json.RawMessage `json:"payload"`
	Status      StrategyStatus  `json:"status"`
	JobID       string          `json:"job_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TaskKind names the stage a task dispatches to.
type TaskKind string

const (
	TaskAnalyze    TaskKind = "analyze"
	TaskStrategize TaskKind = "strategize"
	TaskProduce    TaskKind = "produce"
)

// TaskStatus is the queue state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskReview    TaskStatus = "review"
	TaskDeferred  TaskStatus = "deferred"
)

// Task is one unit of queued stage work.
type Task struct {
	ID            int64      `json:"id"`
	Kind          TaskKind   `json:"kind"`
	SubjectID     int64      `json:"subject_id"`
	Status        TaskStatus `json:"status"`
	Attempts      int        `json:"attempts"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	NotBefore     *time.Time `json:"not_before,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
