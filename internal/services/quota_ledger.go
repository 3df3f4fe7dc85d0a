package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chart_analyzer_go_backend/internal/models"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaPolicy selects how CheckAndConsume meters usage. A ledger applies one
// policy to every call.
type QuotaPolicy string

const (
	// PolicyImmediate consumes one unit inside the check itself. A rollover
	// writes daily_usage = 1 and the reported Remaining already excludes the
	// current request. No follow-up call is needed.
	PolicyImmediate QuotaPolicy = "immediate"
	// PolicyDeferred only checks; a rollover resets daily_usage to 0. The caller
	// must call CommitUsage once the gated work has succeeded. Two concurrent
	// checks may both see the last free unit under this policy.
	PolicyDeferred QuotaPolicy = "deferred"
)

func ParseQuotaPolicy(s string) (QuotaPolicy, error) {
	switch QuotaPolicy(s) {
	case PolicyImmediate, "":
		return PolicyImmediate, nil
	case PolicyDeferred:
		return PolicyDeferred, nil
	}
	return "", fmt.Errorf("unknown quota policy %q", s)
}

// QuotaDecision is the outcome of a quota check. Reason is ErrUserNotFound or
// ErrLimitReached when Allowed is false.
type QuotaDecision struct {
	Allowed   bool
	Remaining int
	Reason    error
}

type DefaultQuotaLedger struct {
	db      *gorm.DB
	policy  QuotaPolicy
	timeout time.Duration
}

func NewQuotaLedger(db *gorm.DB, policy QuotaPolicy, timeout time.Duration) QuotaLedger {
	return &DefaultQuotaLedger{db: db, policy: policy, timeout: timeout}
}

func (l *DefaultQuotaLedger) Policy() QuotaPolicy {
	return l.policy
}

func (l *DefaultQuotaLedger) withTimeout(ctx context.Context) (*gorm.DB, context.CancelFunc) {
	ctx, cancel := withStoreTimeout(ctx, l.timeout)
	return l.db.WithContext(ctx), cancel
}

// UpsertIdentity binds externalID to userID, creating the record if needed.
// Rebinding the same user overwrites the external id and keeps the usage.
func (l *DefaultQuotaLedger) UpsertIdentity(ctx context.Context, userID int64, externalID string) error {
	if externalID == "" {
		return ErrInvalidExternalID
	}
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	// last_usage_date is left to the store's CURRENT_DATE default.
	user := &models.VerifiedUser{UserID: userID, ExternalID: externalID}
	err := db.Omit("last_usage_date").Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"external_id"}),
	}).Create(user).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", ErrExternalIDTaken, externalID)
	}
	return storeError("upsert identity", err)
}

const consumeSQL = `UPDATE verified_users
SET daily_usage = CASE WHEN last_usage_date < CURRENT_DATE THEN 1 ELSE daily_usage + 1 END,
	last_usage_date = CURRENT_DATE
WHERE user_id = ? AND (last_usage_date < CURRENT_DATE OR daily_usage < ?)
RETURNING daily_usage`

func (l *DefaultQuotaLedger) CheckAndConsume(ctx context.Context, userID int64, limit int) (QuotaDecision, error) {
	if limit < 1 {
		return QuotaDecision{}, ErrInvalidLimit
	}
	if l.policy == PolicyDeferred {
		return l.check(ctx, userID, limit)
	}
	return l.consume(ctx, userID, limit)
}

// consume decides and writes in one conditional statement, so concurrent
// requests for a user serialize on the row.
func (l *DefaultQuotaLedger) consume(ctx context.Context, userID int64, limit int) (QuotaDecision, error) {
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	var row struct{ DailyUsage int }
	result := db.Raw(consumeSQL, userID, limit).Scan(&row)
	if result.Error != nil {
		return QuotaDecision{}, storeError("consume quota", result.Error)
	}
	if result.RowsAffected > 0 {
		return QuotaDecision{Allowed: true, Remaining: limit - row.DailyUsage}, nil
	}
	return l.deny(db, userID)
}

// check is the deferred variant: it locks the row, resets it on a new day and
// reports what is left without consuming.
func (l *DefaultQuotaLedger) check(ctx context.Context, userID int64, limit int) (QuotaDecision, error) {
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	var decision QuotaDecision
	err := db.Transaction(func(tx *gorm.DB) error {
		var user models.VerifiedUser
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ?", userID).
			First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				decision = QuotaDecision{Reason: ErrUserNotFound}
				return nil
			}
			return err
		}

		reset := tx.Model(&models.VerifiedUser{}).
			Where("user_id = ? AND last_usage_date < CURRENT_DATE", userID).
			Updates(map[string]interface{}{
				"daily_usage":     0,
				"last_usage_date": gorm.Expr("CURRENT_DATE"),
			})
		if reset.Error != nil {
			return reset.Error
		}
		if reset.RowsAffected > 0 {
			decision = QuotaDecision{Allowed: true, Remaining: limit}
			return nil
		}

		if user.DailyUsage < limit {
			decision = QuotaDecision{Allowed: true, Remaining: limit - user.DailyUsage}
			return nil
		}
		decision = QuotaDecision{Reason: ErrLimitReached}
		return nil
	})
	if err != nil {
		return QuotaDecision{}, storeError("check quota", err)
	}
	return decision, nil
}

// deny tells a missing user apart from an exhausted one after the
// conditional update touched no row. Records are never deleted, so the
// answer cannot change between the two statements.
func (l *DefaultQuotaLedger) deny(db *gorm.DB, userID int64) (QuotaDecision, error) {
	var count int64
	if err := db.Model(&models.VerifiedUser{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return QuotaDecision{}, storeError("classify denial", err)
	}
	if count == 0 {
		return QuotaDecision{Reason: ErrUserNotFound}, nil
	}
	return QuotaDecision{Reason: ErrLimitReached}, nil
}

// CommitUsage records one consumed unit. Under PolicyDeferred it must only be
// called after the gated work succeeded.
func (l *DefaultQuotaLedger) CommitUsage(ctx context.Context, userID int64) error {
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	result := db.Model(&models.VerifiedUser{}).
		Where("user_id = ?", userID).
		UpdateColumn("daily_usage", gorm.Expr("daily_usage + 1"))
	if result.Error != nil {
		return storeError("commit usage", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	log.Debug().Int64("user_id", userID).Msg("usage committed")
	return nil
}

func (l *DefaultQuotaLedger) IsVerified(ctx context.Context, userID int64) (bool, error) {
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := db.Model(&models.VerifiedUser{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return false, storeError("lookup user", err)
	}
	return count > 0, nil
}

func (l *DefaultQuotaLedger) ExternalID(ctx context.Context, userID int64) (string, error) {
	user, err := l.Usage(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.ExternalID, nil
}

// Usage returns the stored record as is; DailyUsage is stale when
// LastUsageDate is before today.
func (l *DefaultQuotaLedger) Usage(ctx context.Context, userID int64) (*models.VerifiedUser, error) {
	db, cancel := l.withTimeout(ctx)
	defer cancel()

	var user models.VerifiedUser
	if err := db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, storeError("lookup user", err)
	}
	return &user, nil
}
