package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rvgrafica/rvgrafica-erp/internal/observability"
	"github.com/rvgrafica/rvgrafica-erp/internal/shared"
)

// RepositoryPort abstracts ledger persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	EntryIDBySource(ctx context.Context, module string, sourceID uuid.UUID) (int64, bool, error)
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	UnbalancedEntries(ctx context.Context) ([]EntryIssue, error)
}

// Service posts business events into the journal.
type Service struct {
	repo     RepositoryPort
	resolver *ChartResolver
	metrics  *observability.DomainMetrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service over the default chart.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		resolver: NewChartResolver(DefaultChart()),
		logger:   logger,
		now:      time.Now,
	}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches domain metrics.
func (s *Service) WithMetrics(m *observability.DomainMetrics) {
	s.metrics = m
}

// Resolver exposes the chart resolver.
func (s *Service) Resolver() *ChartResolver {
	return s.resolver
}

const maxPostAttempts = 3

// PostEvent turns evt into one balanced journal entry and returns its id.
// An event that was posted before yields *AlreadyPostedError.
func (s *Service) PostEvent(ctx context.Context, evt Event, actorID int64) (int64, error) {
	if evt == nil {
		return 0, fmt.Errorf("accounting: event required: %w", shared.ErrValidation)
	}
	module, sourceID := SourceOf(evt)
	lines, err := evt.template()
	if err != nil {
		s.metrics.Posted(module, "rejected")
		return 0, err
	}
	header := evt.header()
	header.SourceModule = module
	header.SourceID = sourceID
	header.PostedBy = actorID
	if header.Date.IsZero() {
		header.Date = s.now()
	}

	var entryID int64
	for attempt := 1; attempt <= maxPostAttempts; attempt++ {
		entryID, err = s.postOnce(ctx, module, sourceID, header, lines)
		if !errors.Is(err, shared.ErrConflict) {
			break
		}
		s.logger.Warn("journal posting conflict, retrying",
			slog.String("source_module", module),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	if errors.Is(err, errSourceTaken) {
		err = s.alreadyPosted(ctx, module, sourceID)
	}
	if err != nil {
		var posted *AlreadyPostedError
		switch {
		case errors.As(err, &posted):
			s.metrics.Posted(module, "already_posted")
		case errors.Is(err, shared.ErrImbalance):
			s.metrics.Posted(module, "imbalance")
			s.logger.Error("unbalanced journal entry rejected", slog.String("source_module", module), slog.String("reference", header.Reference), slog.Any("error", err))
		default:
			s.metrics.Posted(module, "failed")
		}
		return 0, err
	}
	s.metrics.Posted(module, "posted")
	s.logger.Info("journal entry posted",
		slog.Int64("entry_id", entryID),
		slog.String("source_module", module),
		slog.String("reference", header.Reference),
	)
	return entryID, nil
}

// postOnce writes the entry in one transaction. Concurrent writers can abort
// it with a serialization failure, which surfaces as shared.ErrConflict.
func (s *Service) postOnce(ctx context.Context, module string, sourceID uuid.UUID, header EntryInput, lines []TemplateLine) (int64, error) {
	var entryID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, found, err := tx.FindEntryBySource(ctx, module, sourceID)
		if err != nil {
			return err
		}
		if found {
			return &AlreadyPostedError{EntryID: existing, SourceModule: module, SourceID: sourceID}
		}
		postings, err := Materialize(ctx, s.resolver, tx, lines)
		if err != nil {
			return err
		}
		entryID, err = tx.InsertEntry(ctx, header)
		if err != nil {
			return err
		}
		return tx.InsertLines(ctx, entryID, postings)
	})
	return entryID, err
}

// alreadyPosted resolves a lost insert race into the winning entry.
func (s *Service) alreadyPosted(ctx context.Context, module string, sourceID uuid.UUID) error {
	id, found, err := s.repo.EntryIDBySource(ctx, module, sourceID)
	if err != nil {
		return err
	}
	if !found {
		return errSourceTaken
	}
	return &AlreadyPostedError{EntryID: id, SourceModule: module, SourceID: sourceID}
}

// SeedDefaultChart creates every account of the chart that does not exist yet
// and returns how many accounts the chart holds.
func (s *Service) SeedDefaultChart(ctx context.Context) (int, error) {
	specs := s.resolver.Specs()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, spec := range specs {
			if _, err := s.resolver.Resolve(ctx, tx, spec); err != nil {
				return fmt.Errorf("accounting: seed %s: %w", spec.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(specs), nil
}

// GetEntry loads one journal entry with its lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// ListEntries lists journal entry headers.
func (s *Service) ListEntries(ctx context.Context, filter EntryFilter) ([]JournalEntry, int, error) {
	return s.repo.ListEntries(ctx, filter)
}

// ListAccounts retrieves the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// AccountTree loads the chart as a tree.
func (s *Service) AccountTree(ctx context.Context) (*Tree, error) {
	accounts, err := s.repo.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}
	return BuildTree(accounts)
}

// VerifyBalanced returns every persisted entry that breaks the double entry rule.
func (s *Service) VerifyBalanced(ctx context.Context) ([]EntryIssue, error) {
	issues, err := s.repo.UnbalancedEntries(ctx)
	if err != nil {
		return nil, err
	}
	for _, issue := range issues {
		s.logger.Error("journal entry out of balance",
			slog.Int64("entry_id", issue.EntryID),
			slog.String("debit", issue.Debit.String()),
			slog.String("credit", issue.Credit.String()),
			slog.Bool("mixed_line", issue.MixedLine),
		)
	}
	return issues, nil
}
