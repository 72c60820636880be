package shield

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/mbd888/safeshield/internal/analysis"
	"github.com/mbd888/safeshield/internal/hypernative"
	"github.com/mbd888/safeshield/internal/metrics"
	"github.com/mbd888/safeshield/internal/realtime"
	"github.com/mbd888/safeshield/internal/traces"
	"github.com/mbd888/safeshield/internal/verdict"
)

// sourceAddressBook labels address book lookups in the source metrics.
const sourceAddressBook = "address_book"

// Analysis kinds carried on realtime updates.
const (
	KindRecipient = "recipient"
	KindContract  = "contract"
	KindThreat    = "threat"
)

// Backend is the Safe backend analysis API.
type Backend interface {
	AnalyzeRecipients(ctx context.Context, chainID, safe string, recipients []string) (analysis.RecipientResults, error)
	AnalyzeContract(ctx context.Context, chainID, safe string, tx analysis.Transaction) (analysis.ContractResults, error)
}

// AddressBook produces ADDRESS_BOOK findings.
type AddressBook interface {
	Check(ctx context.Context, chainID string, addresses, ownedSafes []string) (map[string]analysis.Result, error)
}

// Activity produces RECIPIENT_ACTIVITY findings.
type Activity interface {
	Check(ctx context.Context, addresses []string) (map[string]analysis.Result, error)
}

// ThreatAssessor is the threat vendor.
type ThreatAssessor interface {
	Assess(ctx context.Context, tok *hypernative.Token, req hypernative.TxRequest) (hypernative.Assessment, error)
}

// Publisher receives analysis progress.
type Publisher interface {
	PublishAnalysis(chainID, safe string, update realtime.AnalysisUpdate)
}

// Deps wires the service. Every collaborator except Descriptions may be nil,
// in which case the corresponding source contributes nothing.
type Deps struct {
	Backend      Backend
	AddressBook  AddressBook
	Activity     Activity
	Threat       ThreatAssessor
	Tokens       hypernative.TokenStore
	Verdicts     *verdict.Recorder
	Publisher    Publisher
	Descriptions *Descriptions
	Logger       *slog.Logger
}

// Service runs the analysis sources concurrently and folds their partial
// results through the merge engine as each one resolves.
type Service struct {
	deps    Deps
	flights singleflight.Group
	timeout time.Duration
}

// NewService creates a new analysis service.
func NewService(deps Deps) *Service {
	if deps.Descriptions == nil {
		deps.Descriptions = DefaultDescriptions()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps, timeout: 30 * time.Second}
}

// Descriptions returns the wording table used for consolidation.
func (s *Service) Descriptions() *Descriptions {
	return s.deps.Descriptions
}

// ThreatEnabled reports whether a threat vendor is configured.
func (s *Service) ThreatEnabled() bool {
	return s.deps.Threat != nil && s.deps.Tokens != nil
}

// AnalyzeRecipients runs the backend and address book checks concurrently,
// then the activity check on every non-Safe recipient. onUpdate (optional)
// sees the re-merged results after each source resolves; the last update has
// Loading false and equals the returned value.
//
// Identical concurrent requests share one run. Callers that join a run that
// is already in flight receive only the final result.
//
// The returned error is non-nil only for invalid requests. Source failures
// are reported in AsyncResult.Err with the backend error taking precedence.
func (s *Service) AnalyzeRecipients(ctx context.Context, req RecipientRequest, onUpdate func(AsyncResult[analysis.RecipientResults])) (AsyncResult[analysis.RecipientResults], error) {
	if err := req.validate(); err != nil {
		return AsyncResult[analysis.RecipientResults]{}, err
	}
	req.Safe = analysis.Checksum(req.Safe)
	req.Recipients = analysis.ChecksumAll(req.Recipients)
	req.OwnedSafes = analysis.ChecksumAll(req.OwnedSafes)

	ch := s.flights.DoChan(recipientKey(req), func() (any, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return s.runRecipients(runCtx, req, onUpdate), nil
	})

	select {
	case <-ctx.Done():
		return AsyncResult[analysis.RecipientResults]{Data: analysis.RecipientResults{}, Err: ctx.Err()}, nil
	case res := <-ch:
		out := res.Val.(AsyncResult[analysis.RecipientResults])
		out.Data = out.Data.Clone()
		return out, nil
	}
}

func recipientKey(req RecipientRequest) string {
	recipients := append([]string(nil), req.Recipients...)
	owned := append([]string(nil), req.OwnedSafes...)
	sort.Strings(recipients)
	sort.Strings(owned)
	return req.ChainID + "|" + req.Safe + "|" + strings.Join(recipients, ",") + "|" + strings.Join(owned, ",")
}

// recipientState accumulates partial results under a mutex.
type recipientState struct {
	mu          sync.Mutex
	backend     analysis.RecipientResults
	addressBook map[string]analysis.Result
	activity    map[string]analysis.Result
	backendErr  error
	bookErr     error
	activityErr error
}

func (st *recipientState) snapshot(loading bool) AsyncResult[analysis.RecipientResults] {
	return AsyncResult[analysis.RecipientResults]{
		Data:    MergeRecipientResults(st.backend, st.addressBook, st.activity),
		Err:     firstError(st.backendErr, st.bookErr, st.activityErr),
		Loading: loading,
	}
}

// firstError returns the first non-nil error in precedence order.
func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) runRecipients(ctx context.Context, req RecipientRequest, onUpdate func(AsyncResult[analysis.RecipientResults])) AsyncResult[analysis.RecipientResults] {
	ctx, span := traces.StartSpan(ctx, "shield.AnalyzeRecipients",
		traces.ChainID(req.ChainID), traces.SafeAddr(req.Safe), traces.AddressCount(len(req.Recipients)))
	defer span.End()

	st := &recipientState{}
	emit := func(update AsyncResult[analysis.RecipientResults]) {
		if onUpdate != nil {
			onUpdate(update)
		}
		s.publish(req.ChainID, req.Safe, KindRecipient, update.Loading, update.Err, update.Data)
	}
	resolved := func(apply func()) {
		st.mu.Lock()
		apply()
		update := st.snapshot(true)
		st.mu.Unlock()
		emit(update)
	}

	var g errgroup.Group
	if s.deps.Backend != nil {
		g.Go(func() error {
			res, err := s.deps.Backend.AnalyzeRecipients(ctx, req.ChainID, req.Safe, req.Recipients)
			resolved(func() { st.backend, st.backendErr = res, err })
			return nil
		})
	}
	if s.deps.AddressBook != nil {
		g.Go(func() error {
			done := metrics.ObserveSource(sourceAddressBook)
			res, err := s.deps.AddressBook.Check(ctx, req.ChainID, req.Recipients, req.OwnedSafes)
			done(err)
			resolved(func() { st.addressBook, st.bookErr = res, err })
			return nil
		})
	}
	_ = g.Wait()

	if s.deps.Activity != nil {
		st.mu.Lock()
		candidates := activityCandidates(st.backend, req.Recipients)
		st.mu.Unlock()
		if len(candidates) > 0 {
			res, err := s.deps.Activity.Check(ctx, candidates)
			st.mu.Lock()
			st.activity, st.activityErr = res, err
			st.mu.Unlock()
		}
	}

	st.mu.Lock()
	final := st.snapshot(false)
	st.mu.Unlock()
	if final.Err != nil {
		traces.Fail(span, final.Err)
		s.deps.Logger.Warn("recipient analysis incomplete",
			"chain_id", req.ChainID, "safe", req.Safe, "error", final.Err)
	}
	emit(final)
	return final
}

// activityCandidates is the non-Safe filter over the backend results plus
// any requested recipient the backend did not report on.
func activityCandidates(backend analysis.RecipientResults, recipients []string) []string {
	candidates := FilterNonSafeRecipients(backend)
	reported := make(map[string]bool, len(backend))
	for addr := range backend {
		reported[analysis.Checksum(addr)] = true
	}
	for _, addr := range recipients {
		if !reported[addr] {
			candidates = append(candidates, addr)
		}
	}
	return analysis.ChecksumAll(candidates)
}

// AnalyzeContract asks the backend for contract findings on a transaction.
func (s *Service) AnalyzeContract(ctx context.Context, req ContractRequest) (AsyncResult[analysis.ContractResults], error) {
	req, err := req.normalize()
	if err != nil {
		return AsyncResult[analysis.ContractResults]{}, err
	}
	if s.deps.Backend == nil {
		return AsyncResult[analysis.ContractResults]{}, ErrContractDisabled
	}
	req.Safe = analysis.Checksum(req.Safe)

	ctx, span := traces.StartSpan(ctx, "shield.AnalyzeContract",
		traces.ChainID(req.ChainID), traces.SafeAddr(req.Safe))
	defer span.End()

	s.publish(req.ChainID, req.Safe, KindContract, true, nil, nil)
	res, err := s.deps.Backend.AnalyzeContract(ctx, req.ChainID, req.Safe, req.Transaction)
	if res == nil {
		res = analysis.ContractResults{}
	}
	out := AsyncResult[analysis.ContractResults]{Data: res, Err: err}
	if err != nil {
		traces.Fail(span, err)
	}
	s.publish(req.ChainID, req.Safe, KindContract, false, err, res)
	return out, nil
}

// AnalyzeThreat asks the threat vendor to assess a transaction on behalf of
// sessionID. A session without a valid token fails with
// hypernative.ErrNotAuthenticated. Vendor failure envelopes become a
// CRITICAL finding, not an error.
func (s *Service) AnalyzeThreat(ctx context.Context, sessionID string, req ThreatRequest) (AsyncResult[analysis.ThreatResults], error) {
	req, err := req.normalize()
	if err != nil {
		return AsyncResult[analysis.ThreatResults]{}, err
	}
	if !s.ThreatEnabled() {
		return AsyncResult[analysis.ThreatResults]{}, ErrThreatDisabled
	}
	req.Safe = analysis.Checksum(req.Safe)

	tok, err := hypernative.ValidToken(ctx, s.deps.Tokens, sessionID)
	if err != nil {
		return AsyncResult[analysis.ThreatResults]{}, err
	}

	ctx, span := traces.StartSpan(ctx, "shield.AnalyzeThreat",
		traces.ChainID(req.ChainID), traces.SafeAddr(req.Safe), traces.Source(hypernative.Source))
	defer span.End()

	s.publish(req.ChainID, req.Safe, KindThreat, true, nil, nil)
	assessment, err := s.deps.Threat.Assess(ctx, tok, hypernative.TxRequest{
		ChainID:     req.ChainID,
		SafeAddress: req.Safe,
		Transaction: req.Transaction,
	})
	if errors.Is(err, hypernative.ErrNotAuthenticated) {
		return AsyncResult[analysis.ThreatResults]{}, err
	}
	out := AsyncResult[analysis.ThreatResults]{Data: analysis.ThreatResults{}, Err: err}
	if err != nil {
		traces.Fail(span, err)
	} else {
		out.Data = hypernative.ThreatResultsFor(req.Safe, assessment)
	}
	s.publish(req.ChainID, req.Safe, KindThreat, false, err, out.Data)
	return out, nil
}

// Analyze runs every applicable analysis concurrently and derives the
// visible findings and the overall status. Threat analysis runs only when a
// transaction is given and the vendor is configured; a session without a
// login yields a threat result carrying ErrNotAuthenticated.
func (s *Service) Analyze(ctx context.Context, sessionID string, req FullRequest) (*Report, error) {
	recipientReq := RecipientRequest{
		ChainID:    req.ChainID,
		Safe:       req.Safe,
		Recipients: req.Recipients,
		OwnedSafes: req.OwnedSafes,
	}
	if len(req.Recipients) > 0 {
		if err := recipientReq.validate(); err != nil {
			return nil, err
		}
	} else if err := validateTarget(req.ChainID, req.Safe); err != nil {
		return nil, err
	}

	var txReq ContractRequest
	if req.Transaction != nil {
		var err error
		txReq, err = ContractRequest{ChainID: req.ChainID, Safe: req.Safe, Transaction: *req.Transaction}.normalize()
		if err != nil {
			return nil, err
		}
	}

	report := &Report{ChainID: req.ChainID, Safe: analysis.Checksum(req.Safe)}
	report.Recipient.Data = analysis.RecipientResults{}

	var g errgroup.Group
	if len(req.Recipients) > 0 {
		g.Go(func() error {
			res, err := s.AnalyzeRecipients(ctx, recipientReq, nil)
			report.Recipient = res
			return err
		})
	}
	if req.Transaction != nil && s.deps.Backend != nil {
		g.Go(func() error {
			res, err := s.AnalyzeContract(ctx, txReq)
			report.Contract = &res
			return err
		})
	}
	if req.Transaction != nil && s.ThreatEnabled() {
		g.Go(func() error {
			res, err := s.AnalyzeThreat(ctx, sessionID, txReq)
			if errors.Is(err, hypernative.ErrNotAuthenticated) {
				res, err = AsyncResult[analysis.ThreatResults]{Data: analysis.ThreatResults{}, Err: err}, nil
			}
			report.Threat = &res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	in := OverallInput{Recipient: report.Recipient.Data, SimulationFailed: req.SimulationFailed}
	report.Visible = Visible{
		Recipient: VisibleResults(report.Recipient.Data, s.deps.Descriptions),
		Contract:  []analysis.Result{},
		Threat:    []analysis.Result{},
	}
	if report.Contract != nil {
		in.Contract = report.Contract.Data
		report.Visible.Contract = VisibleResults(report.Contract.Data, s.deps.Descriptions)
	}
	if report.Threat != nil {
		in.Threat = report.Threat.Data
		report.Visible.Threat = VisibleThreatResults(report.Threat.Data)
	}

	overall, ok := OverallStatus(in)
	if !ok {
		metrics.AnalysesTotal.WithLabelValues("none").Inc()
		return report, nil
	}
	report.Overall = &overall
	metrics.AnalysesTotal.WithLabelValues(overall.Severity.String()).Inc()

	if s.deps.Verdicts != nil {
		v := verdict.New(report.ChainID, report.Safe, overall.Severity, overall.Title, report.sources())
		report.VerdictID = v.ID
		s.deps.Verdicts.Record(v)
	}
	return report, nil
}

// sources lists the analyses that completed without error, recorded on the
// verdict.
func (r *Report) sources() []string {
	var out []string
	if len(r.Recipient.Data) > 0 && r.Recipient.Err == nil {
		out = append(out, KindRecipient)
	}
	if r.Contract != nil && r.Contract.Err == nil {
		out = append(out, KindContract)
	}
	if r.Threat != nil && r.Threat.Err == nil {
		out = append(out, KindThreat)
	}
	return out
}

func (s *Service) publish(chainID, safe, kind string, loading bool, err error, results any) {
	if s.deps.Publisher == nil {
		return
	}
	update := realtime.AnalysisUpdate{Kind: kind, Loading: loading, Results: results}
	if err != nil {
		update.Error = err.Error()
	}
	s.deps.Publisher.PublishAnalysis(chainID, safe, update)
}
