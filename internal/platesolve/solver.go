package platesolve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/clock"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
	"github.com/syt1126/StarLink-Pro-app/internal/logging"
	"github.com/syt1126/StarLink-Pro-app/internal/metrics"
	"github.com/syt1126/StarLink-Pro-app/internal/transform"
)

// DefaultLabel names a solved field with no catalogued objects.
const DefaultLabel = "Star Field"

// maxLabelObjects caps how many object names go into a label.
const maxLabelObjects = 3

// defaultFileName is sent when the request does not name its image.
const defaultFileName = "star.jpg"

// Config holds solve timing and service settings.
type Config struct {
	BaseURL            string        // Service root (default: https://nova.astrometry.net)
	APIKey             string        // Account API key
	PollInterval       time.Duration // Wait before each poll (default: 3s)
	AssignmentAttempts int           // Submission polls before giving up (default: 20)
	StatusAttempts     int           // Job status polls before giving up (default: 30)
	LoginTimeout       time.Duration // default: 15s
	UploadTimeout      time.Duration // default: 60s
	PollTimeout        time.Duration // Per poll, calibration and info request (default: 10s)
	Upload             UploadSettings
}

// DefaultConfig returns the standard timings: a job id within 60s and a
// solution within a further 90s.
func DefaultConfig() Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		PollInterval:       3 * time.Second,
		AssignmentAttempts: 20,
		StatusAttempts:     30,
		LoginTimeout:       15 * time.Second,
		UploadTimeout:      60 * time.Second,
		PollTimeout:        10 * time.Second,
		Upload:             DefaultUploadSettings(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.AssignmentAttempts <= 0 {
		c.AssignmentAttempts = d.AssignmentAttempts
	}
	if c.StatusAttempts <= 0 {
		c.StatusAttempts = d.StatusAttempts
	}
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = d.LoginTimeout
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = d.UploadTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = d.PollTimeout
	}
	if c.Upload == (UploadSettings{}) {
		c.Upload = d.Upload
	}
	return c
}

// Sender transmits a pointing command to a mount.
type Sender interface {
	Send(ctx context.Context, ip string, eq astro.Equatorial) error
}

// Option configures a Solver.
type Option func(*Solver)

// WithClock sets the time source used for poll waits and elapsed time.
func WithClock(c clock.Clock) Option {
	return func(s *Solver) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Solver) { s.logger = l }
}

// WithSender enables transmission of solved coordinates.
func WithSender(tx Sender) Option {
	return func(s *Solver) { s.sender = tx }
}

// WithObservers sets the observer location source for the horizontal
// conversion of a solution.
func WithObservers(store *transform.ObserverStore) Option {
	return func(s *Solver) { s.observers = store }
}

// Solver runs solve jobs against one service.
type Solver struct {
	client    *Client
	cfg       Config
	clock     clock.Clock
	logger    *slog.Logger
	sender    Sender
	observers *transform.ObserverStore
}

// NewSolver creates a Solver. Zero config fields take their defaults.
func NewSolver(client *Client, cfg Config, opts ...Option) *Solver {
	s := &Solver{
		client: client,
		cfg:    cfg.withDefaults(),
		clock:  clock.Real(),
		logger: logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observers == nil {
		s.observers = transform.NewObserverStore(transform.DefaultObserver())
	}
	return s
}

// Config returns the effective configuration.
func (s *Solver) Config() Config {
	return s.cfg
}

// Request is one image to solve.
type Request struct {
	Image    []byte
	FileName string
	MountIP  string // Send the solution here when non-empty.
}

// Job is the state of one solve run. It is owned by the worker running it.
type Job struct {
	ID           string
	FileName     string
	MountIP      string
	Session      string
	SubmissionID int
	RemoteJobID  int
	Phase        Phase

	image    []byte
	progress *Progress
}

func newJob(req Request) *Job {
	name := req.FileName
	if name == "" {
		name = defaultFileName
	}
	return &Job{
		ID:       uuid.NewString(),
		FileName: name,
		MountIP:  req.MountIP,
		Phase:    Created,
		image:    req.Image,
		progress: newProgress(),
	}
}

// Result is the outcome of a solve.
type Result struct {
	ID            string             `json:"id"`
	Phase         Phase              `json:"phase"`
	SubmissionID  int                `json:"submission_id,omitempty"`
	RemoteJobID   int                `json:"job_id,omitempty"`
	Target        astro.Equatorial   `json:"target"`
	Horizontal    astro.Horizontal   `json:"horizontal"`
	Observer      transform.Observer `json:"observer"`
	JulianDate    float64            `json:"julian_date,omitempty"`
	Label         string             `json:"label,omitempty"`
	MountIP       string             `json:"mount_ip,omitempty"`
	Pointed       bool               `json:"pointed"`
	PointingError string             `json:"pointing_error,omitempty"`
	Error         string             `json:"error,omitempty"`
	ErrorKind     string             `json:"error_kind,omitempty"`
	Elapsed       time.Duration      `json:"elapsed_ns"`

	Err error `json:"-"`
}

// Solve runs a job to completion and returns its result. The returned error
// is nil only when the phase is Succeeded; the result is never nil.
func (s *Solver) Solve(ctx context.Context, req Request) (*Result, error) {
	res := s.run(ctx, newJob(req))
	return res, res.Err
}

// Run is a solve job executing in the background.
type Run struct {
	job    *Job
	cancel context.CancelFunc
	done   chan struct{}
	result *Result
}

// Start launches a job on its own goroutine. The job stops at the next poll
// boundary, or sooner for in-flight requests, when ctx ends or Cancel is called.
func (s *Solver) Start(ctx context.Context, req Request) *Run {
	ctx, cancel := context.WithCancel(ctx)
	r := &Run{
		job:    newJob(req),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer cancel()
		r.result = s.run(ctx, r.job)
	}()
	return r
}

// ID returns the job id.
func (r *Run) ID() string { return r.job.ID }

// FileName returns the submitted file name.
func (r *Run) FileName() string { return r.job.FileName }

// Progress returns the job's progress log.
func (r *Run) Progress() *Progress { return r.job.progress }

// Done is closed when the job reaches a terminal phase.
func (r *Run) Done() <-chan struct{} { return r.done }

// Cancel requests cancellation. It does not wait; use Done.
func (r *Run) Cancel() { r.cancel() }

// Result returns the outcome, or nil while the job is running.
func (r *Run) Result() *Result {
	select {
	case <-r.done:
		return r.result
	default:
		return nil
	}
}

// Wait blocks until the job finishes or ctx ends.
func (r *Run) Wait(ctx context.Context) (*Result, error) {
	select {
	case <-r.done:
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Phase returns the phase of the latest progress event.
func (r *Run) Phase() Phase {
	if e, ok := r.job.progress.Latest(); ok {
		return e.Phase
	}
	return Created
}

// runState carries per-run bookkeeping through the phases.
type runState struct {
	job    *Job
	start  time.Time
	logger *slog.Logger
}

func (s *Solver) run(ctx context.Context, job *Job) *Result {
	metrics.SetSolveActive(true)
	defer metrics.SetSolveActive(false)

	st := &runState{
		job:    job,
		start:  s.clock.Now(),
		logger: s.logger.With("component", "platesolve", "solve_id", job.ID),
	}
	st.logger.Info("solve started", "service", s.client.BaseURL(), "file", job.FileName, "bytes", len(job.image))

	res := s.execute(ctx, st)

	res.ID = job.ID
	res.SubmissionID = job.SubmissionID
	res.RemoteJobID = job.RemoteJobID
	res.MountIP = job.MountIP
	res.Elapsed = s.elapsed(st)
	if res.Err != nil {
		res.Error = res.Err.Error()
		res.ErrorKind = fault.KindOf(res.Err).String()
	}

	s.enter(st, res.Phase, terminalMessage(res))
	metrics.RecordSolveOutcome(res.Phase.label(), res.Elapsed)

	attrs := []any{
		"phase", res.Phase.String(),
		"elapsed_seconds", res.Elapsed.Seconds(),
	}
	if res.Err != nil {
		st.logger.Warn("solve ended", append(attrs, "error", res.Err)...)
	} else {
		st.logger.Info("solve ended", append(attrs, "ra", res.Target.RA, "dec", res.Target.Dec, "label", res.Label)...)
	}
	return res
}

// execute walks the phases and returns a result in a terminal phase.
func (s *Solver) execute(ctx context.Context, st *runState) *Result {
	job := st.job
	if len(job.image) == 0 {
		return failed(fault.New(fault.InputError, "platesolve", "image is empty"))
	}

	// Login and upload are not retried.
	s.enter(st, AuthenticatingSession, "")
	session, err := s.login(ctx)
	if err != nil {
		return s.stopped(ctx, err, Failed)
	}
	job.Session = session

	s.enter(st, UploadingImage, "")
	subID, err := s.upload(ctx, job)
	if err != nil {
		return s.stopped(ctx, err, Failed)
	}
	job.SubmissionID = subID

	s.enter(st, AwaitingJobAssignment, "")
	jobID, err := s.awaitAssignment(ctx, st)
	if err != nil {
		return s.stopped(ctx, err, TimedOut)
	}
	job.RemoteJobID = jobID

	s.enter(st, PollingJobStatus, fmt.Sprintf("job #%d", jobID))
	eq, label, err := s.awaitSolution(ctx, st)
	if err != nil {
		phase := Failed
		if fault.Is(err, fault.TimeoutError) {
			phase = TimedOut
		}
		return s.stopped(ctx, err, phase)
	}

	res := &Result{Phase: Succeeded, Target: eq, Label: label}
	s.point(ctx, st, res)
	return res
}

func (s *Solver) login(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.LoginTimeout)
	defer cancel()
	session, err := s.client.Login(ctx, s.cfg.APIKey)
	if err != nil {
		return "", fmt.Errorf("login failed: %w", err)
	}
	return session, nil
}

func (s *Solver) upload(ctx context.Context, job *Job) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.UploadTimeout)
	defer cancel()
	subID, err := s.client.Upload(ctx, job.Session, job.FileName, job.image, s.cfg.Upload)
	if err != nil {
		return 0, fmt.Errorf("upload failed: %w", err)
	}
	return subID, nil
}

// awaitAssignment polls the submission until the service assigns a job.
// Transport and decode errors use up an attempt and are otherwise ignored.
func (s *Solver) awaitAssignment(ctx context.Context, st *runState) (int, error) {
	phase := AwaitingJobAssignment
	for attempt := 1; attempt <= s.cfg.AssignmentAttempts; attempt++ {
		if err := s.wait(ctx); err != nil {
			return 0, err
		}
		s.enter(st, phase, "")

		pctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		jobID, ok, err := s.client.SubmissionJob(pctx, st.job.SubmissionID)
		cancel()

		switch {
		case ctx.Err() != nil:
			return 0, ctx.Err()
		case err != nil:
			metrics.RecordSolvePoll(phase.label(), "error")
			st.logger.Debug("submission poll failed", "attempt", attempt, "error", err)
		case ok:
			metrics.RecordSolvePoll(phase.label(), "assigned")
			st.logger.Info("job assigned", "job_id", jobID, "attempt", attempt)
			return jobID, nil
		default:
			metrics.RecordSolvePoll(phase.label(), "pending")
		}
	}
	return 0, fault.New(fault.TimeoutError, "platesolve.submission",
		fmt.Sprintf("no job id after %d attempts", s.cfg.AssignmentAttempts))
}

// awaitSolution polls the job until it succeeds or fails, then fetches the
// calibration and object list.
func (s *Solver) awaitSolution(ctx context.Context, st *runState) (astro.Equatorial, string, error) {
	phase := PollingJobStatus
	jobID := st.job.RemoteJobID
	for attempt := 1; attempt <= s.cfg.StatusAttempts; attempt++ {
		if err := s.wait(ctx); err != nil {
			return astro.Equatorial{}, "", err
		}
		s.enter(st, phase, "")

		pctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
		status, err := s.client.JobStatus(pctx, jobID)
		cancel()

		switch {
		case ctx.Err() != nil:
			return astro.Equatorial{}, "", ctx.Err()
		case err != nil:
			metrics.RecordSolvePoll(phase.label(), "error")
			st.logger.Debug("job poll failed", "attempt", attempt, "error", err)
		case status == "failure":
			metrics.RecordSolvePoll(phase.label(), "failure")
			return astro.Equatorial{}, "", fault.New(fault.RemoteRejection, "platesolve.job", "no match")
		case status == "success":
			metrics.RecordSolvePoll(phase.label(), "success")
			return s.fetchSolution(ctx, st)
		default:
			metrics.RecordSolvePoll(phase.label(), "pending")
		}
	}
	return astro.Equatorial{}, "", fault.New(fault.TimeoutError, "platesolve.job",
		fmt.Sprintf("solve timeout after %d attempts", s.cfg.StatusAttempts))
}

func (s *Solver) fetchSolution(ctx context.Context, st *runState) (astro.Equatorial, string, error) {
	jobID := st.job.RemoteJobID

	cctx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	eq, err := s.client.Calibration(cctx, jobID)
	cancel()
	if fault.Is(err, fault.TimeoutError) {
		// A slow calibration fetch is a transport failure, not a solve timeout.
		err = fault.Wrap(fault.NetworkError, "platesolve.calibration", "calibration request timed out", err)
	}
	if err != nil {
		return astro.Equatorial{}, "", err
	}

	ictx, cancel := context.WithTimeout(ctx, s.cfg.PollTimeout)
	objects, err := s.client.Objects(ictx, jobID)
	cancel()
	if err != nil {
		st.logger.Warn("object list unavailable", "error", err)
		objects = nil
	}
	return eq, Label(objects), nil
}

// point converts the solution for the current observer and sends it to the
// mount. Failures here are recorded on the result but do not fail the solve.
func (s *Solver) point(ctx context.Context, st *runState, res *Result) {
	res.Observer = s.observers.Get()
	res.JulianDate = astro.JulianDate(s.clock.Now())

	h, err := transform.ToHorizontal(res.Target, res.Observer, res.JulianDate)
	if err != nil {
		res.PointingError = err.Error()
		st.logger.Warn("horizontal conversion failed", "error", err)
		return
	}
	res.Horizontal = h

	if st.job.MountIP == "" || s.sender == nil {
		return
	}
	if err := s.sender.Send(ctx, st.job.MountIP, res.Target); err != nil {
		res.PointingError = err.Error()
		st.logger.Warn("pointing command failed", "mount_ip", st.job.MountIP, "error", err)
		return
	}
	res.Pointed = true
}

// wait blocks for one poll interval.
func (s *Solver) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.clock.After(s.cfg.PollInterval):
		return nil
	}
}

// enter records a transition or a poll in the progress log.
func (s *Solver) enter(st *runState, phase Phase, detail string) {
	st.job.Phase = phase
	elapsed := s.elapsed(st)
	msg := fmt.Sprintf("%s (%ds)", phase, int(elapsed/time.Second))
	if detail != "" {
		msg = fmt.Sprintf("%s: %s (%ds)", phase, detail, int(elapsed/time.Second))
	}
	st.job.progress.append(Event{
		Phase:   phase,
		Message: msg,
		Elapsed: elapsed,
		At:      s.clock.Now(),
	})
}

func (s *Solver) elapsed(st *runState) time.Duration {
	return s.clock.Now().Sub(st.start)
}

// stopped maps err to a terminal result. Context cancellation always wins.
func (s *Solver) stopped(ctx context.Context, err error, phase Phase) *Result {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return &Result{Phase: Cancelled, Err: fault.Wrap(fault.Cancelled, "platesolve", "solve cancelled", err)}
	}
	return &Result{Phase: phase, Err: err}
}

func failed(err error) *Result {
	return &Result{Phase: Failed, Err: err}
}

func terminalMessage(res *Result) string {
	switch {
	case res.Phase == Succeeded:
		return fmt.Sprintf("%s at %s", res.Label, res.Target)
	case res.Err != nil:
		return res.Err.Error()
	}
	return ""
}

// Label names a solved field after up to three of its objects.
func Label(objects []string) string {
	var names []string
	for _, o := range objects {
		if o = strings.TrimSpace(o); o != "" {
			names = append(names, o)
		}
		if len(names) == maxLabelObjects {
			break
		}
	}
	if len(names) == 0 {
		return DefaultLabel
	}
	return strings.Join(names, ", ")
}
