package analysis

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bryanwahyu/paperscore/internal/application"
	"github.com/bryanwahyu/paperscore/internal/application/pipeline"
	"github.com/bryanwahyu/paperscore/internal/domain/documents"
	"github.com/bryanwahyu/paperscore/internal/domain/jobs"
)

// Bytes per page used to estimate length before any text is extracted.
const (
	pdfBytesPerPage     = 60000
	docxBytesPerPage    = 15000
	defaultBytesPerPage = 3000
)

// Pricing is the credit cost of each tier.
type Pricing struct {
	Basic         int `json:"basic"`
	Standard      int `json:"standard"`
	Comprehensive int `json:"comprehensive"`
}

// DefaultPricing 1/3/5 credits
var DefaultPricing = Pricing{Basic: 1, Standard: 3, Comprehensive: 5}

// CreditsFor returns the cost of a tier.
func (p Pricing) CreditsFor(t jobs.Tier) int {
	switch t {
	case jobs.TierComprehensive:
		return p.Comprehensive
	case jobs.TierStandard:
		return p.Standard
	default:
		return p.Basic
	}
}

// Service implements the client-facing use cases. Safe for concurrent use.
type Service struct {
	Documents   documents.Repository
	Ledger      documents.CreditLedger
	StatusStore jobs.StatusStore
	Source      documents.Source
	Chain       *pipeline.Chain
	Clock       application.Clock
	Pricing     Pricing
	Logger      *zap.Logger
}

//
// ==== USE CASES ====
//

// SubmitCommand untuk submit dokumen baru
type SubmitCommand struct {
	OwnerID  string `json:"owner_id"`
	FileRef  string `json:"file_ref"`
	FileName string `json:"file_name"`
}

type SubmitResult struct {
	ID             string           `json:"id"`
	Status         documents.Status `json:"status"`
	Tier           jobs.Tier        `json:"tier"`
	EstimatedPages int              `json:"estimated_pages"`
	CreditsCharged int              `json:"credits_charged"`
	Balance        int              `json:"balance"`
	MessageID      string           `json:"message_id"`
}

// Submit debits credits, creates the record and queues step 1. Any failure
// after the debit refunds it.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (SubmitResult, error) {
	now := s.Clock.Now()
	id := uuid.New().String()
	log := s.log().With(zap.String("job_id", id), zap.String("owner_id", cmd.OwnerID))

	size, err := s.stat(ctx, cmd.FileRef)
	if err != nil {
		return SubmitResult{}, err
	}
	pages := EstimatePages(cmd.FileName, size)
	tier := jobs.TierForPages(pages)
	credits := s.pricing().CreditsFor(tier)

	debit, err := s.Ledger.Debit(ctx, cmd.OwnerID, id, credits, fmt.Sprintf("%s analysis of %s", tier, cmd.FileName))
	if err != nil {
		return SubmitResult{}, fmt.Errorf("debit: %w", err)
	}
	if !debit.Success {
		return SubmitResult{}, fmt.Errorf("%w: %d needed, balance %d", documents.ErrInsufficientCredits, credits, debit.NewBalance)
	}

	doc := &documents.Document{
		ID:             id,
		OwnerID:        cmd.OwnerID,
		FileRef:        cmd.FileRef,
		FileName:       cmd.FileName,
		Tier:           tier,
		Status:         documents.StatusPending,
		EstimatedPages: pages,
		CreditsCharged: credits,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.Documents.Create(ctx, doc); err != nil {
		s.refund(ctx, log, cmd.OwnerID, id, credits)
		return SubmitResult{}, fmt.Errorf("create document: %w", err)
	}

	job := jobs.First(jobs.Job{
		ID:             id,
		OwnerID:        cmd.OwnerID,
		SourceFileRef:  cmd.FileRef,
		SourceFileName: cmd.FileName,
		Tier:           tier,
		Credits:        credits,
		SubmittedAt:    now,
	})
	if err := s.StatusStore.SetStatus(ctx, id, jobs.NewStatus(job, jobs.StatusPending, 0, now)); err != nil {
		// the first stage writes its own status; a missing pending entry is cosmetic
		log.Warn("pending status not stored", zap.Error(err))
	}

	msgID, err := s.Chain.Enqueue(ctx, job)
	if err != nil {
		log.Error("enqueue first stage failed", zap.Error(err))
		if moved, merr := s.Documents.MarkFailed(ctx, id, jobs.FailureMessage(err)); merr != nil {
			log.Error("mark failed after enqueue error", zap.Error(merr))
		} else if moved {
			s.refund(ctx, log, cmd.OwnerID, id, credits)
		}
		if !errors.Is(err, jobs.ErrQueueUnavailable) {
			err = fmt.Errorf("%w: %v", jobs.ErrQueueUnavailable, err)
		}
		return SubmitResult{}, err
	}

	log.Info("analysis submitted", zap.String("tier", string(tier)), zap.Int("pages", pages), zap.Int("credits", credits))
	return SubmitResult{
		ID:             id,
		Status:         documents.StatusPending,
		Tier:           tier,
		EstimatedPages: pages,
		CreditsCharged: credits,
		Balance:        debit.NewBalance,
		MessageID:      msgID,
	}, nil
}

// Get ambil 1 dokumen by id, scoped to its owner when owner is set.
func (s *Service) Get(ctx context.Context, owner, id string) (*documents.Document, error) {
	doc, err := s.Documents.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if owner != "" && doc.OwnerID != owner {
		return nil, documents.ErrNotFound
	}
	return doc, nil
}

// StatusView is the live progress of a job.
type StatusView struct {
	ID       string                     `json:"id"`
	Status   documents.Status           `json:"status"`
	Live     *jobs.JobStatus            `json:"live,omitempty"`
	Progress documents.ProcessingStatus `json:"progress"`
	Error    string                     `json:"error,omitempty"`
}

// Status merges the primary record with the transient status entry, which
// is gone once the job finished.
func (s *Service) Status(ctx context.Context, owner, id string) (StatusView, error) {
	doc, err := s.Get(ctx, owner, id)
	if err != nil {
		return StatusView{}, err
	}
	view := StatusView{ID: doc.ID, Status: doc.Status, Progress: doc.ProcessingStatus, Error: doc.ErrorMessage}
	if doc.Status.Terminal() {
		return view, nil
	}
	live, err := s.StatusStore.GetStatus(ctx, id)
	if err != nil {
		s.log().Warn("live status unavailable", zap.String("job_id", id), zap.Error(err))
		return view, nil
	}
	view.Live = live
	return view, nil
}

// List paginates the owner's documents.
func (s *Service) List(ctx context.Context, owner string, page, pageSize int) (documents.PaginatedResult, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return s.Documents.ListByOwner(ctx, owner, page, pageSize)
}

// Account is what the owner has left and has used.
type Account struct {
	Balance int             `json:"balance"`
	Usage   documents.Usage `json:"usage"`
	Pricing Pricing         `json:"pricing"`
}

func (s *Service) Account(ctx context.Context, owner string) (Account, error) {
	bal, err := s.Ledger.Balance(ctx, owner)
	if err != nil {
		return Account{}, err
	}
	usage, err := s.Documents.Usage(ctx, owner)
	if err != nil {
		return Account{}, err
	}
	return Account{Balance: bal, Usage: usage, Pricing: s.pricing()}, nil
}

// Quote prices a file without submitting it.
type Quote struct {
	EstimatedPages int       `json:"estimated_pages"`
	Tier           jobs.Tier `json:"tier"`
	Credits        int       `json:"credits"`
}

func (s *Service) Quote(ctx context.Context, fileRef, fileName string) (Quote, error) {
	size, err := s.stat(ctx, fileRef)
	if err != nil {
		return Quote{}, err
	}
	pages := EstimatePages(fileName, size)
	tier := jobs.TierForPages(pages)
	return Quote{EstimatedPages: pages, Tier: tier, Credits: s.pricing().CreditsFor(tier)}, nil
}

// stat sizes the uploaded file. A missing object is the caller's mistake and
// reads as not found.
func (s *Service) stat(ctx context.Context, ref string) (int64, error) {
	size, err := s.Source.Stat(ctx, ref)
	if errors.Is(err, jobs.ErrMissingDependency) {
		return 0, fmt.Errorf("%w: source file %s", documents.ErrNotFound, ref)
	}
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", ref, err)
	}
	return size, nil
}

// EstimatePages guesses the page count from file size, at least one page.
func EstimatePages(fileName string, size int64) int {
	per := int64(defaultBytesPerPage)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		per = pdfBytesPerPage
	case ".docx", ".doc":
		per = docxBytesPerPage
	}
	pages := int((size + per - 1) / per)
	if pages < 1 {
		pages = 1
	}
	return pages
}

func (s *Service) refund(ctx context.Context, log *zap.Logger, owner, id string, credits int) {
	if _, err := s.Ledger.Refund(ctx, owner, id, credits); err != nil {
		log.Error("refund failed", zap.Error(err))
	}
}

func (s *Service) pricing() Pricing {
	if s.Pricing == (Pricing{}) {
		return DefaultPricing
	}
	return s.Pricing
}

func (s *Service) log() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}
