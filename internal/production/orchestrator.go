package production

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"viralforge/internal/budget"
	"viralforge/internal/logging"
	"viralforge/internal/media/ffmpeg"
	"viralforge/internal/objectstore"
	"viralforge/internal/services"
	"viralforge/internal/services/render"
)

// Failure reasons persisted on the job.
const (
	ReasonBudget            = "budget"
	ReasonNarrationFailed   = "narration failed"
	ReasonNarrationProbe    = "narration probe failed"
	ReasonAllSegmentsFailed = "all segments failed"
	ReasonConcatFailed      = "concatenation failed"
	ReasonMixFailed         = "mix failed"
	ReasonCancelled         = "cancelled"
)

// Defaults for Options fields left at zero.
const (
	DefaultMaxConcurrent    = 2
	DefaultRenderTimeout    = 10 * time.Minute
	DefaultNarrationTimeout = 2 * time.Minute
	DefaultMusicVolume      = 0.2
	DefaultNarrationVolume  = 1.0
	DefaultFade             = 2 * time.Second
)

// Synthesizer produces narration audio. tts.EdgeTTS and tts.ElevenLabs
// satisfy it.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text, outPath string) error
}

// Renderer produces one video clip per prompt.
type Renderer interface {
	Render(ctx context.Context, seg render.Segment, outPath string) error
}

// Prober measures media durations.
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// Assembler joins clips and lays audio over them.
type Assembler interface {
	Concat(ctx context.Context, segments []string, out string) error
	HoldLastFrame(ctx context.Context, in string, extra time.Duration, out string) error
	Mix(ctx context.Context, in ffmpeg.MixInput, out string) error
}

// Ledger is the slice of budget.Ledger the orchestrator needs.
type Ledger interface {
	CanSpend(ctx context.Context, amount budget.USD, service string) (bool, string, error)
	Record(ctx context.Context, amount budget.USD, service string) (budget.Period, error)
	Price(service string, units int) (budget.USD, error)
}

// Observer receives production events, typically for metrics.
type Observer interface {
	SegmentFinished(status string, elapsed time.Duration)
	JobFinished(job *Job)
}

// Deps are the collaborators of an Orchestrator. Fallback is optional.
type Deps struct {
	Primary   Synthesizer
	Fallback  Synthesizer
	Renderer  Renderer
	Prober    Prober
	Assembler Assembler
	Ledger    Ledger
	Objects   objectstore.Store
	Jobs      JobStore
	Observer  Observer
}

// Options tune an Orchestrator.
type Options struct {
	WorkDir           string
	MaxSegmentSeconds float64
	MaxConcurrent     int
	RenderTimeout     time.Duration
	NarrationTimeout  time.Duration
	MusicPath         string
	MusicVolume       float64
	NarrationVolume   float64
	Fade              time.Duration
	// KeepWorkDir leaves the per-job scratch directory in place.
	KeepWorkDir bool
}

// Orchestrator turns a script and scene prompts into a final video while
// keeping spend on the ledger.
type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// New validates deps and fills option defaults.
func New(deps Deps, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Primary == nil:
		return nil, services.Wrap(services.ErrConfiguration, "production", "new", "primary synthesizer is required", nil)
	case deps.Renderer == nil, deps.Prober == nil, deps.Assembler == nil:
		return nil, services.Wrap(services.ErrConfiguration, "production", "new", "renderer, prober and assembler are required", nil)
	case deps.Ledger == nil, deps.Objects == nil, deps.Jobs == nil:
		return nil, services.Wrap(services.ErrConfiguration, "production", "new", "ledger, object store and job store are required", nil)
	}
	if opts.WorkDir == "" {
		opts.WorkDir = filepath.Join(os.TempDir(), "viralforge")
	}
	if opts.MaxSegmentSeconds <= 0 {
		opts.MaxSegmentSeconds = DefaultMaxSegmentSeconds
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = DefaultMaxConcurrent
	}
	if opts.RenderTimeout <= 0 {
		opts.RenderTimeout = DefaultRenderTimeout
	}
	if opts.NarrationTimeout <= 0 {
		opts.NarrationTimeout = DefaultNarrationTimeout
	}
	if opts.MusicVolume <= 0 {
		opts.MusicVolume = DefaultMusicVolume
	}
	if opts.NarrationVolume <= 0 {
		opts.NarrationVolume = DefaultNarrationVolume
	}
	if opts.Fade <= 0 {
		opts.Fade = DefaultFade
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "production"),
		now:    time.Now,
		newID:  uuid.NewString,
	}, nil
}

// failure ends a job with a classified reason. It is never returned to
// Produce callers; Produce turns it into the job's failed state.
type failure struct {
	kind   services.Kind
	reason string
	err    error
}

func (f *failure) Error() string {
	if f.err == nil {
		return f.reason
	}
	return f.reason + ": " + f.err.Error()
}

func (f *failure) Unwrap() error { return f.err }

func fail(kind services.Kind, reason string, err error) error {
	return &failure{kind: kind, reason: reason, err: err}
}

// Produce runs one production. Gate, provider and partial outcomes are
// reported through the job and summary; the error is reserved for problems
// the caller must handle, such as an unreachable job store or ledger.
func (o *Orchestrator) Produce(ctx context.Context, req Request) (*Job, Summary, error) {
	if strings.TrimSpace(req.Script) == "" || len(req.Prompts) == 0 {
		err := services.Wrap(services.ErrValidation, "production", "request", "script and at least one prompt are required", nil)
		return nil, Summary{Kind: services.KindValidation, Reason: err.Error()}, err
	}

	now := o.now().UTC()
	job := &Job{
		ID:         o.newID(),
		StrategyID: req.StrategyID,
		Status:     StatusBudgetBlocked,
		Script:     req.Script,
		Prompts:    append([]Prompt(nil), req.Prompts...),
		History:    []StatusChange{{Status: StatusBudgetBlocked, At: now}},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	ctx = services.WithJobID(ctx, job.ID)
	r := &run{
		o:       o,
		job:     job,
		req:     req,
		dir:     filepath.Join(o.opts.WorkDir, job.ID),
		logger:  logging.WithContext(ctx, o.logger),
		persist: context.WithoutCancel(ctx),
	}
	if err := r.save(); err != nil {
		return job, r.summary(), err
	}
	if !o.opts.KeepWorkDir {
		defer os.RemoveAll(r.dir)
	}

	err := r.execute(ctx)
	settleErr := r.settle()

	var f *failure
	switch {
	case err == nil:
	case errors.As(err, &f):
		r.markFailed(f.kind, f.reason, f.err)
		err = nil
	default:
		r.markFailed(services.KindFatal, "unexpected error", err)
	}
	if settleErr != nil {
		err = errors.Join(err, settleErr)
	}
	if saveErr := r.save(); saveErr != nil {
		err = errors.Join(err, saveErr)
	}
	if o.deps.Observer != nil {
		o.deps.Observer.JobFinished(job)
	}
	r.logOutcome()
	return job, r.summary(), err
}

type run struct {
	o       *Orchestrator
	job     *Job
	req     Request
	dir     string
	logger  *slog.Logger
	persist context.Context

	narrationPath    string
	narration        time.Duration
	narrationService string
	narrated         bool
	failedAt         Status
	mu               sync.Mutex
}

func (r *run) execute(ctx context.Context) error {
	if err := r.preflight(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	if err := r.advance(StatusSynthesizingNarration); err != nil {
		return err
	}
	if err := r.synthesize(ctx); err != nil {
		return err
	}

	prompts := Reconcile(r.job.Prompts, r.narration.Seconds(), r.o.opts.MaxSegmentSeconds)
	if err := r.advance(StatusRenderingSegments); err != nil {
		return err
	}
	clips, err := r.renderSegments(ctx, prompts)
	if err != nil {
		return err
	}

	if err := r.advance(StatusConcatenating); err != nil {
		return err
	}
	assembled, length, err := r.assemble(ctx, clips)
	if err != nil {
		return err
	}

	if err := r.advance(StatusMixing); err != nil {
		return err
	}
	return r.mix(ctx, assembled, length)
}

func (r *run) preflight(ctx context.Context) error {
	estimate, err := r.estimate()
	if err != nil {
		return fmt.Errorf("estimate production: %w", err)
	}
	r.job.Estimate = estimate
	allowed, reason, err := r.o.deps.Ledger.CanSpend(ctx, estimate, "production")
	if err != nil {
		return fmt.Errorf("budget check: %w", err)
	}
	if !allowed {
		r.logger.Info("production blocked by budget",
			logging.Args(append(logging.DecisionAttrs("production_budget", "refused", reason),
				logging.String("estimate", estimate.String()),
				logging.String(logging.FieldEventType, "production_budget_blocked"),
			)...)...)
		return fail(services.KindGate, ReasonBudget, services.Wrap(services.ErrGate, "production", "preflight", reason, nil))
	}
	return r.advance(StatusQueued)
}

// estimate prices one narration with the primary synthesizer plus a clip
// for every prompt.
func (r *run) estimate() (budget.USD, error) {
	narration, err := r.narrationCost(r.o.deps.Primary.Name())
	if err != nil {
		return 0, err
	}
	clips, err := r.o.deps.Ledger.Price(budget.ServiceVeo, len(r.job.Prompts))
	if err != nil {
		return 0, err
	}
	return narration + clips, nil
}

// narrationCost prices the script for service. Character-priced services
// bill per character; every other synthesizer bills per call.
func (r *run) narrationCost(service string) (budget.USD, error) {
	units := 1
	if service == budget.ServiceElevenLabs {
		units = budget.CountCharacters(r.job.Script)
	}
	return r.o.deps.Ledger.Price(service, units)
}

func (r *run) synthesize(ctx context.Context) error {
	out := filepath.Join(r.dir, "narration.mp3")
	policy := services.CallPolicy{Timeout: r.o.opts.NarrationTimeout}
	synths := []Synthesizer{r.o.deps.Primary}
	if r.o.deps.Fallback != nil {
		synths = append(synths, r.o.deps.Fallback)
	}
	var errs []error
	var used Synthesizer
	for _, synth := range synths {
		if err := ctx.Err(); err != nil {
			return fail(services.KindFatal, ReasonCancelled, err)
		}
		_ = os.Remove(out)
		err := policy.Run(ctx, func(ctx context.Context) error {
			return synth.Synthesize(ctx, r.job.Script, out)
		})
		if err == nil {
			used = synth
			break
		}
		errs = append(errs, fmt.Errorf("%s: %w", synth.Name(), err))
		logging.WarnWithContext(r.logger, "narration provider failed", "narration_provider_failed",
			logging.String("provider", synth.Name()),
			logging.Error(err),
			logging.String(logging.FieldImpact, "trying the next narration provider"),
			logging.String(logging.FieldErrorHint, "check the provider binary, API key and quota"),
		)
	}
	if used == nil {
		return fail(services.KindFatal, ReasonNarrationFailed, errors.Join(errs...))
	}

	cost, err := r.narrationCost(used.Name())
	if err != nil {
		return fmt.Errorf("price narration: %w", err)
	}
	r.narrated = true
	r.narrationService = used.Name()
	r.narrationPath = out
	r.job.NarrationProvider = used.Name()
	r.job.NarrationCost = cost
	r.job.TotalCost = cost

	length, err := r.o.deps.Prober.Duration(ctx, out)
	if err != nil || length <= 0 {
		if err == nil {
			err = errors.New("narration has no duration")
		}
		return fail(services.KindFatal, ReasonNarrationProbe, err)
	}
	r.narration = length
	r.job.NarrationSeconds = length.Seconds()

	ref, err := r.o.deps.Objects.PutFile(ctx, objectstore.ProductionKey(r.job.ID, "narration.mp3"), out)
	if err != nil {
		return fmt.Errorf("store narration: %w", err)
	}
	r.job.NarrationRef = ref
	r.logger.Info("narration synthesized",
		logging.String("provider", used.Name()),
		logging.Float64("seconds", r.job.NarrationSeconds),
		logging.String("cost", cost.String()),
		logging.String(logging.FieldEventType, "narration_synthesized"),
	)
	return nil
}

// renderSegments renders every prompt independently and returns the local
// paths of the successful clips in prompt order.
func (r *run) renderSegments(ctx context.Context, prompts []Prompt) ([]string, error) {
	unit, err := r.o.deps.Ledger.Price(budget.ServiceVeo, 1)
	if err != nil {
		return nil, fmt.Errorf("price render: %w", err)
	}
	segments := make([]Segment, len(prompts))
	paths := make([]string, len(prompts))
	for i, p := range prompts {
		segments[i] = Segment{Index: i, Scene: p.Scene, Prompt: p.Text, Seconds: p.Seconds, Status: SegmentPending}
		paths[i] = filepath.Join(r.dir, fmt.Sprintf("segment_%02d.mp4", i+1))
	}
	r.job.Segments = segments

	policy := services.CallPolicy{Timeout: r.o.opts.RenderTimeout}
	var g errgroup.Group
	g.SetLimit(r.o.opts.MaxConcurrent)
	for i := range segments {
		g.Go(func() error {
			seg := &segments[i]
			started := time.Now()
			err := policy.Run(ctx, func(ctx context.Context) error {
				return r.o.deps.Renderer.Render(ctx, render.Segment{
					Index:   seg.Index,
					Prompt:  seg.Prompt,
					Seconds: requestSeconds(seg.Seconds),
				}, paths[i])
			})
			if err == nil {
				if info, statErr := os.Stat(paths[i]); statErr != nil || info.Size() == 0 {
					err = fmt.Errorf("render produced no file at %s", paths[i])
				}
			}
			if err != nil {
				seg.Status = SegmentFailed
				seg.Error = err.Error()
				logging.WarnWithContext(r.logger, "segment render failed", "segment_failed",
					logging.Int("segment", seg.Index+1),
					logging.Error(err),
					logging.String(logging.FieldImpact, "segment dropped from the final video"),
					logging.String(logging.FieldErrorHint, "check render provider status and quota"),
				)
			} else {
				seg.Status = SegmentRendered
				seg.Cost = unit
			}
			if r.o.deps.Observer != nil {
				r.o.deps.Observer.SegmentFinished(seg.Status, time.Since(started))
			}
			return nil
		})
	}
	_ = g.Wait()

	var clips []string
	for i := range segments {
		seg := &segments[i]
		if seg.Status != SegmentRendered {
			r.job.SegmentsFailed++
			continue
		}
		r.job.SegmentsCost += seg.Cost
		clips = append(clips, paths[i])
	}
	r.job.TotalCost = r.job.NarrationCost + r.job.SegmentsCost

	if err := ctx.Err(); err != nil {
		return nil, fail(services.KindFatal, ReasonCancelled, err)
	}
	if len(clips) == 0 {
		return nil, fail(services.KindProvider, ReasonAllSegmentsFailed, nil)
	}
	for i := range segments {
		seg := &segments[i]
		if seg.Status != SegmentRendered {
			continue
		}
		ref, err := r.o.deps.Objects.PutFile(ctx, objectstore.ProductionKey(r.job.ID, "segments", filepath.Base(paths[i])), paths[i])
		if err != nil {
			return nil, fmt.Errorf("store segment %d: %w", seg.Index+1, err)
		}
		seg.Ref = ref
	}
	if r.job.SegmentsFailed > 0 {
		logging.WarnWithContext(r.logger, "production continuing with partial segments", "segments_partial",
			logging.Int("failed", r.job.SegmentsFailed),
			logging.Int("rendered", len(clips)),
			logging.String(logging.FieldImpact, "final video holds the last frame to cover missing scenes"),
			logging.String(logging.FieldErrorHint, "re-run the strategy to regenerate missing scenes"),
		)
	}
	return clips, nil
}

// assemble concatenates clips in prompt order and holds the last frame when
// the result is shorter than the narration.
func (r *run) assemble(ctx context.Context, clips []string) (string, time.Duration, error) {
	concat := filepath.Join(r.dir, "concat.mp4")
	if err := r.o.deps.Assembler.Concat(ctx, clips, concat); err != nil {
		return "", 0, fail(services.KindFatal, ReasonConcatFailed, err)
	}
	length, err := r.o.deps.Prober.Duration(ctx, concat)
	if err != nil {
		return "", 0, fail(services.KindFatal, ReasonConcatFailed, err)
	}
	assembled := concat
	if deficit := r.narration - length; deficit > 0 {
		held := filepath.Join(r.dir, "assembled.mp4")
		if err := r.o.deps.Assembler.HoldLastFrame(ctx, concat, deficit, held); err != nil {
			return "", 0, fail(services.KindFatal, ReasonConcatFailed, err)
		}
		r.logger.Info("holding last frame to cover narration",
			logging.Duration("deficit", deficit),
			logging.String(logging.FieldEventType, "assembly_hold"),
		)
		assembled = held
		length = r.narration
	}
	ref, err := r.o.deps.Objects.PutFile(ctx, objectstore.ProductionKey(r.job.ID, "assembled.mp4"), assembled)
	if err != nil {
		return "", 0, fmt.Errorf("store assembled video: %w", err)
	}
	r.job.AssembledRef = ref
	return assembled, length, nil
}

func (r *run) mix(ctx context.Context, video string, length time.Duration) error {
	music := r.req.MusicPath
	if music == "" {
		music = r.o.opts.MusicPath
	}
	if music != "" {
		if _, err := os.Stat(music); err != nil {
			logging.WarnWithContext(r.logger, "music bed unavailable", "music_missing",
				logging.String("music_path", music),
				logging.Error(err),
				logging.String(logging.FieldImpact, "final mix carries narration only"),
				logging.String(logging.FieldErrorHint, "check mix.music_path"),
			)
			music = ""
		}
	}
	final := filepath.Join(r.dir, "final.mp4")
	if err := r.o.deps.Assembler.Mix(ctx, ffmpeg.MixInput{
		Video:           video,
		Narration:       r.narrationPath,
		Music:           music,
		Duration:        length,
		NarrationVolume: r.o.opts.NarrationVolume,
		MusicVolume:     r.o.opts.MusicVolume,
		Fade:            r.o.opts.Fade,
	}, final); err != nil {
		return fail(services.KindFatal, ReasonMixFailed, err)
	}
	ref, err := r.o.deps.Objects.PutFile(ctx, objectstore.ProductionKey(r.job.ID, "final.mp4"), final)
	if err != nil {
		return fmt.Errorf("store final video: %w", err)
	}
	r.job.FinalRef = ref
	r.job.FinalSeconds = length.Seconds()
	completed := r.o.now().UTC()
	r.job.CompletedAt = &completed
	if r.job.SegmentsFailed > 0 {
		r.job.Kind = services.KindPartial
	}
	return r.advance(StatusCompleted)
}

// settle records what was actually spent, once per service, after
// narration succeeded. It uses a context detached from cancellation so an
// aborted job still lands on the ledger.
func (r *run) settle() error {
	if !r.narrated || r.job.Settled {
		return nil
	}
	r.job.TotalCost = r.job.NarrationCost + r.job.SegmentsCost
	var errs []error
	if _, err := r.o.deps.Ledger.Record(r.persist, r.job.NarrationCost, r.narrationService); err != nil {
		errs = append(errs, err)
	}
	if _, err := r.o.deps.Ledger.Record(r.persist, r.job.SegmentsCost, budget.ServiceVeo); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		logging.ErrorWithContext(r.logger, "production settlement failed", "production_settlement_failed",
			logging.Error(errors.Join(errs...)),
			logging.String("total", r.job.TotalCost.String()),
			logging.String(logging.FieldErrorHint, "reconcile the ledger manually; spend may be unaccounted"),
		)
		return fmt.Errorf("settle production %s: %w", r.job.ID, errors.Join(errs...))
	}
	r.job.Settled = true
	return nil
}

func (r *run) advance(to Status) error {
	r.mu.Lock()
	from := r.job.Status
	if !CanTransition(from, to) {
		r.mu.Unlock()
		return fmt.Errorf("invalid job transition %s -> %s", from, to)
	}
	at := r.o.now().UTC()
	r.job.Status = to
	r.job.UpdatedAt = at
	r.job.History = append(r.job.History, StatusChange{Status: to, At: at})
	r.mu.Unlock()
	r.logger.Debug("job transition",
		logging.String("from", string(from)),
		logging.String("to", string(to)),
		logging.String(logging.FieldEventType, "job_transition"),
	)
	return r.save()
}

// markFailed moves a running job to failed. A job that already reached a
// terminal status keeps its outcome; the caller reports the error instead.
func (r *run) markFailed(kind services.Kind, reason string, cause error) {
	if r.job.Status.Terminal() {
		return
	}
	r.failedAt = r.job.Status
	r.job.Kind = kind
	r.job.Error = reason
	if cause != nil && reason != ReasonBudget {
		r.job.Error = reason + ": " + cause.Error()
	}
	at := r.o.now().UTC()
	r.job.Status = StatusFailed
	r.job.UpdatedAt = at
	r.job.History = append(r.job.History, StatusChange{Status: StatusFailed, At: at})
}

func (r *run) save() error {
	if err := r.o.deps.Jobs.SaveJob(r.persist, r.job); err != nil {
		return fmt.Errorf("save job %s: %w", r.job.ID, err)
	}
	return nil
}

func (r *run) summary() Summary {
	s := Summary{
		Stage:          r.job.Status,
		Kind:           r.job.Kind,
		Cost:           r.job.TotalCost,
		SegmentsFailed: r.job.SegmentsFailed,
	}
	if r.job.Status == StatusFailed {
		s.Stage = r.failedAt
		s.Reason = r.job.Error
		if r.job.Kind == services.KindGate {
			s.Reason = ReasonBudget
		}
	}
	return s
}

func (r *run) logOutcome() {
	attrs := []logging.Attr{
		logging.String("status", string(r.job.Status)),
		logging.String("cost", r.job.TotalCost.String()),
		logging.Int("segments_failed", r.job.SegmentsFailed),
	}
	switch r.job.Status {
	case StatusCompleted:
		attrs = append(attrs,
			logging.String("final_ref", r.job.FinalRef),
			logging.Float64("seconds", r.job.FinalSeconds),
			logging.String(logging.FieldEventType, "production_completed"),
		)
		r.logger.Info("production completed", logging.Args(attrs...)...)
	default:
		if r.job.Kind == services.KindGate {
			return
		}
		attrs = append(attrs,
			logging.String("reason", r.job.Error),
			logging.String("kind", string(r.job.Kind)),
			logging.String(logging.FieldImpact, "no final video for this strategy"),
			logging.String(logging.FieldErrorHint, "inspect the job with `viralforge jobs show`"),
		)
		logging.WarnWithContext(r.logger, "production failed", "production_failed", attrs...)
	}
}
