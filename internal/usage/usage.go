// Package usage tracks the rolling request quota and the request/token
// consumption counters for each tenant.
//
// The request quota is deliberately a rolling 30-day window pinned to the
// tenant's first recorded use in the period, not a calendar month: the TTL is
// set once when the counter is created and never refreshed by later
// increments. The calendar-keyed token counters below exist separately, so
// both views of "this month" are available.
package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sdclabs/chatgate/internal/store"
)

// ErrQuotaExceeded is terminal for the current 30-day period.
var ErrQuotaExceeded = errors.New("usage: monthly quota exceeded")

const (
	quotaWindow   = 30 * 24 * time.Hour
	dailyRetain   = 31 * 24 * time.Hour
	monthlyRetain = 365 * 24 * time.Hour
)

type Tracker struct {
	kv  store.Store
	now func() time.Time
}

func New(kv store.Store) *Tracker {
	return &Tracker{kv: kv, now: time.Now}
}

// SetClock replaces the time source. Test helper.
func (t *Tracker) SetClock(now func() time.Time) { t.now = now }

func quotaKey(tenant string) string { return "quota_usage:" + tenant }

func requestKey(tenant, date string) string {
	return fmt.Sprintf("usage:%s:%s", tenant, date)
}

func tokenKey(tenant, suffix string) string {
	return fmt.Sprintf("token_usage:%s:%s", tenant, suffix)
}

// CheckAndCount consumes one request from the tenant's rolling quota. The
// attempt is counted even when it pushes the tenant over the limit; the
// caller must then stop before generating an answer.
func (t *Tracker) CheckAndCount(ctx context.Context, tenantKey string, monthlyLimit int64) error {
	k := quotaKey(tenantKey)

	n, err := t.kv.Incr(ctx, k)
	if err != nil {
		return err
	}

	ttl, err := t.kv.TTL(ctx, k)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	if err == nil && ttl == store.NoTTL {
		// Freshly created (or left unpinned by an earlier crash): pin the
		// 30-day expiry now. This is the only place the TTL is ever written.
		if err := t.kv.Expire(ctx, k, quotaWindow); err != nil {
			return err
		}
	}

	if monthlyLimit > 0 && n > monthlyLimit {
		return ErrQuotaExceeded
	}
	return nil
}

// RecordRequest bumps the per-day admitted-request counter. Best-effort
// accounting, separate from the quota axis.
func (t *Tracker) RecordRequest(ctx context.Context, tenantKey string) error {
	date := t.now().Format("2006-01-02")
	_, err := t.kv.Incr(ctx, requestKey(tenantKey, date))
	return err
}

// AddTokens records token consumption across the total, daily, monthly and
// per-model counters. Called unconditionally for every answered request,
// regardless of where the tenant stands on the request-count quota.
func (t *Tracker) AddTokens(ctx context.Context, tenantKey, model string, tokens int64) error {
	if tokens <= 0 {
		return nil
	}
	if model == "" {
		model = "unknown"
	}
	now := t.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	totalKey := tokenKey(tenantKey, "total")
	dailyKey := tokenKey(tenantKey, "daily:"+day)
	monthlyKey := tokenKey(tenantKey, "monthly:"+month)
	modelKey := tokenKey(tenantKey, "model:"+model)

	if _, err := t.kv.IncrBy(ctx, totalKey, tokens); err != nil {
		return err
	}
	if _, err := t.kv.IncrBy(ctx, dailyKey, tokens); err != nil {
		return err
	}
	if _, err := t.kv.IncrBy(ctx, monthlyKey, tokens); err != nil {
		return err
	}
	if _, err := t.kv.IncrBy(ctx, modelKey, tokens); err != nil {
		return err
	}

	// daily and monthly counters age out; total and per-model never do
	if err := t.kv.Expire(ctx, dailyKey, dailyRetain); err != nil {
		return err
	}
	return t.kv.Expire(ctx, monthlyKey, monthlyRetain)
}

// Report is the read-only usage view exposed to tenants.
type Report struct {
	TotalTokens    int64            `json:"total_tokens"`
	DailyTokens    int64            `json:"daily_tokens"`
	MonthlyTokens  int64            `json:"monthly_tokens"`
	PerModelTokens map[string]int64 `json:"per_model_tokens"`
	QuotaUsed      int64            `json:"quota_used"`
	QuotaResetIn   time.Duration    `json:"quota_reset_in"`
}

func (t *Tracker) getInt(ctx context.Context, key string) (int64, error) {
	raw, err := t.kv.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(raw, 10, 64)
}

// GetReport assembles the current usage counters for a tenant.
func (t *Tracker) GetReport(ctx context.Context, tenantKey string) (*Report, error) {
	now := t.now()
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")

	rep := &Report{PerModelTokens: make(map[string]int64)}

	var err error
	if rep.TotalTokens, err = t.getInt(ctx, tokenKey(tenantKey, "total")); err != nil {
		return nil, err
	}
	if rep.DailyTokens, err = t.getInt(ctx, tokenKey(tenantKey, "daily:"+day)); err != nil {
		return nil, err
	}
	if rep.MonthlyTokens, err = t.getInt(ctx, tokenKey(tenantKey, "monthly:"+month)); err != nil {
		return nil, err
	}
	if rep.QuotaUsed, err = t.getInt(ctx, quotaKey(tenantKey)); err != nil {
		return nil, err
	}

	if ttl, err := t.kv.TTL(ctx, quotaKey(tenantKey)); err == nil && ttl > 0 {
		rep.QuotaResetIn = ttl
	}

	prefix := tokenKey(tenantKey, "model:")
	keys, err := t.kv.Keys(ctx, prefix+"*")
	if err != nil {
		return nil, err
	}
	for _, k := range keys {
		n, err := t.getInt(ctx, k)
		if err != nil {
			return nil, err
		}
		rep.PerModelTokens[k[len(prefix):]] = n
	}
	return rep, nil
}
