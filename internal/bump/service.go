// Package bump is the produced interface of the bump engine: wallet
// provisioning, funding, and starting and stopping sessions.
package bump

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bumpcontrol/internal/activity"
	"bumpcontrol/internal/custody"
	"bumpcontrol/internal/ledger"
	"bumpcontrol/internal/models"
	"bumpcontrol/internal/session"
	"bumpcontrol/internal/wallet"
	"bumpcontrol/pkg/metrics"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	MinIntervalSeconds = 2
	MaxIntervalSeconds = 600
)

var (
	ErrMissingOwner            = errors.New("owner is required")
	ErrMissingTarget           = errors.New("target asset is required")
	ErrInvalidNotional         = errors.New("notional must be positive")
	ErrInvalidInterval         = fmt.Errorf("interval must be between %d and %d seconds", MinIntervalSeconds, MaxIntervalSeconds)
	ErrNoWallets               = errors.New("owner has no worker wallets")
	ErrFundingShape            = errors.New("funding needs one amount per worker wallet")
	ErrInsufficientTotalCredit = errors.New("total credit does not cover one trade")
	ErrPriceUnavailable        = errors.New("price unavailable")
)

// Driver takes a freshly started session and schedules it
type Driver interface {
	Adopt(s *models.Session) bool
}

type Provisioner interface {
	GetOrCreateWallet(ctx context.Context, owner string, index int) (string, error)
}

type DepositVerifier interface {
	VerifyDeposit(ctx context.Context, txRef string, expected decimal.Decimal) (decimal.Decimal, error)
}

// Pricer converts a USD notional into funding units at a fresh price
type Pricer interface {
	TradeAmount(ctx context.Context, notional decimal.Decimal) (decimal.Decimal, error)
}

type Config struct {
	WalletCount            int
	FundingDecimals        int32
	AllowUnverifiedFunding bool
}

type Deps struct {
	Ledger      *ledger.Ledger
	Sessions    session.Store
	Wallets     wallet.Store
	Provisioner Provisioner
	Verifier    DepositVerifier
	Pricer      Pricer
	// Feed receives every activity entry; Log is where entries are read back.
	Feed   activity.Sink
	Log    activity.Store
	Driver Driver
}

type Service struct {
	cfg Config
	Deps
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.WalletCount < 1 {
		cfg.WalletCount = 5
	}
	if cfg.FundingDecimals <= 0 {
		cfg.FundingDecimals = 9
	}
	return &Service{cfg: cfg, Deps: deps}
}

func (s *Service) WalletCount() int { return s.cfg.WalletCount }

// EnsureWallets creates any missing worker wallet of the owner's pool
func (s *Service) EnsureWallets(ctx context.Context, owner string) ([]models.WorkerWallet, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	for i := 0; i < s.cfg.WalletCount; i++ {
		if _, err := s.Provisioner.GetOrCreateWallet(ctx, owner, i); err != nil {
			return nil, fmt.Errorf("provision wallet %d: %w", i, err)
		}
	}
	return s.Wallets.List(ctx, owner)
}

type DepositResult struct {
	Credited     bool                `json:"credited"`
	Amount       decimal.Decimal     `json:"amount"`
	Verification models.Verification `json:"verification"`
	Balance      decimal.Decimal     `json:"balance"`
}

// Deposit credits the owner's main scope after checking the transfer on
// chain. When the chain cannot answer, the expected amount is credited
// unverified only if AllowUnverifiedFunding is set.
func (s *Service) Deposit(ctx context.Context, owner, txRef string, expected decimal.Decimal) (*DepositResult, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if txRef == "" {
		return nil, ledger.ErrMissingReference
	}
	if expected.IsNegative() {
		return nil, ledger.ErrInvalidAmount
	}
	logger := log.WithFields(log.Fields{"owner": owner, "tx": txRef})

	verification := models.VerificationOnchain
	amount, err := s.Verifier.VerifyDeposit(ctx, txRef, expected)
	switch {
	case errors.Is(err, custody.ErrUnverifiable) && s.cfg.AllowUnverifiedFunding:
		if !expected.IsPositive() {
			return nil, fmt.Errorf("%w: unverified deposits need an expected amount", ledger.ErrInvalidAmount)
		}
		logger.Warnf("> deposit not verifiable, crediting expected amount unverified: %v", err)
		amount, verification = expected, models.VerificationFallback
	case err != nil:
		return nil, err
	}

	credited, err := s.Ledger.Deposit(ctx, owner, txRef, amount, verification)
	if err != nil {
		return nil, err
	}
	balance, err := s.Ledger.Balance(ctx, owner, ledger.MainScope)
	if err != nil {
		return nil, err
	}

	if credited {
		logger.WithField("verification", verification).Infof("> deposit of %s credited", amount)
		s.record(ctx, &models.ActivityLog{
			OwnerID:     owner,
			WalletIndex: -1,
			Amount:      amount,
			Status:      models.ActivityFunded,
			TxRef:       txRef,
			Message:     "deposit credited",
			Degraded:    verification == models.VerificationFallback,
			Meta:        models.JSONMap{"kind": "deposit", "verification": string(verification)},
		})
	} else {
		logger.Info("> deposit reference already used")
	}
	return &DepositResult{Credited: credited, Amount: amount, Verification: verification, Balance: balance}, nil
}

// Fund moves amounts[i] from main credit to worker i. Reusing ref is a
// no-op that returns the current entries.
func (s *Service) Fund(ctx context.Context, owner, ref string, amounts []decimal.Decimal) ([]models.CreditEntry, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	if len(amounts) != s.cfg.WalletCount {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrFundingShape, len(amounts), s.cfg.WalletCount)
	}
	prior, err := s.Ledger.Receipt(ctx, ref)
	if err != nil {
		return nil, err
	}

	entries, err := s.Ledger.Distribute(ctx, owner, ref, amounts)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		total := decimal.Zero
		split := make([]string, len(amounts))
		for i, a := range amounts {
			total = total.Add(a)
			split[i] = a.String()
		}
		s.record(ctx, &models.ActivityLog{
			OwnerID:     owner,
			WalletIndex: -1,
			Amount:      total,
			Status:      models.ActivityFunded,
			TxRef:       ref,
			Message:     "credit distributed to worker wallets",
			Meta:        models.JSONMap{"kind": "distribution", "amounts": strings.Join(split, ",")},
		})
	}
	return entries, nil
}

type CreditView struct {
	Entries []models.CreditEntry `json:"entries"`
	Total   decimal.Decimal      `json:"total"`
}

func (s *Service) Credit(ctx context.Context, owner string) (*CreditView, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	entries, err := s.Ledger.Entries(ctx, owner)
	if err != nil {
		return nil, err
	}
	total, err := s.Ledger.TotalCredit(ctx, owner)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.CreditEntry{}
	}
	return &CreditView{Entries: entries, Total: total}, nil
}

type StartRequest struct {
	Owner           string
	TargetAsset     string
	NotionalUSD     decimal.Decimal
	IntervalSeconds int
}

func (r StartRequest) validate() error {
	switch {
	case r.Owner == "":
		return ErrMissingOwner
	case strings.TrimSpace(r.TargetAsset) == "":
		return ErrMissingTarget
	case !r.NotionalUSD.IsPositive():
		return ErrInvalidNotional
	case r.IntervalSeconds < MinIntervalSeconds || r.IntervalSeconds > MaxIntervalSeconds:
		return ErrInvalidInterval
	}
	return nil
}

// StartSession opens a running session once the owner's total credit covers
// at least one trade at the current price, then hands it to the driver.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (*models.Session, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	logger := log.WithField("owner", req.Owner)

	wallets, err := s.Wallets.List(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	if len(wallets) < s.cfg.WalletCount {
		return nil, fmt.Errorf("%w: have %d of %d", ErrNoWallets, len(wallets), s.cfg.WalletCount)
	}
	if _, err := s.Sessions.Running(ctx, req.Owner); err == nil {
		return nil, session.ErrSessionRunning
	} else if !errors.Is(err, session.ErrNoRunningSession) {
		return nil, err
	}

	perTrade, err := s.Pricer.TradeAmount(ctx, req.NotionalUSD)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPriceUnavailable, err)
	}
	total, err := s.Ledger.TotalCredit(ctx, req.Owner)
	if err != nil {
		return nil, err
	}
	if total.LessThan(perTrade) {
		return nil, fmt.Errorf("%w: have %s, one trade needs %s", ErrInsufficientTotalCredit, total, perTrade)
	}

	sess := &models.Session{
		ID:              uuid.NewString(),
		OwnerID:         req.Owner,
		TargetAsset:     strings.TrimSpace(req.TargetAsset),
		NotionalUSD:     req.NotionalUSD,
		IntervalSeconds: req.IntervalSeconds,
		WalletCount:     s.cfg.WalletCount,
		Status:          models.SessionRunning,
		StartedAt:       time.Now(),
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}
	logger.WithField("session", sess.ID).Infof("> session started: %s USD every %ds into %s", sess.NotionalUSD, sess.IntervalSeconds, sess.TargetAsset)

	if s.Driver != nil && !s.Driver.Adopt(sess) {
		logger.WithField("session", sess.ID).Debug("session already driven")
	}
	return sess, nil
}

// StopSession stops the owner's running session. A trade in flight
// finishes; no further trade starts.
func (s *Service) StopSession(ctx context.Context, owner string) (*models.Session, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	sess, err := session.Stop(ctx, s.Sessions, owner, models.StopReasonUser)
	if err != nil {
		return nil, err
	}
	metrics.SessionsStopped.WithLabelValues(string(models.StopReasonUser)).Inc()
	log.WithFields(log.Fields{"owner": owner, "session": sess.ID}).Info("> session stopped by user")

	s.record(ctx, &models.ActivityLog{
		OwnerID:     owner,
		SessionID:   sess.ID,
		WalletIndex: -1,
		Status:      models.ActivityStopped,
		Message:     "session stopped by user",
		Meta:        models.JSONMap{"reason": string(models.StopReasonUser)},
	})
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, owner string) (*models.Session, error) {
	if owner == "" {
		return nil, ErrMissingOwner
	}
	return s.Sessions.Latest(ctx, owner)
}

func (s *Service) Activity(ctx context.Context, owner string, page, pageSize int) ([]models.ActivityLog, int64, error) {
	if owner == "" {
		return nil, 0, ErrMissingOwner
	}
	return s.Log.List(ctx, owner, page, pageSize)
}

func (s *Service) record(ctx context.Context, entry *models.ActivityLog) {
	if s.Feed == nil {
		return
	}
	if err := s.Feed.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.WithField("owner", entry.OwnerID).Warnf("> activity append failed: %v", err)
	}
}
