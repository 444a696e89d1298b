package domain

import "time"

// ProvisioningTask is the unit of asynchronous provisioning work. It lives
// only while its tenant is non-terminal.
type ProvisioningTask struct {
	TenantID  int64
	Payload   CreationPayload
	Attempt   int       // 1-based
	NotBefore time.Time // earliest time the attempt may run
}

// NewProvisioningTask creates the first attempt for a tenant, eligible immediately.
func NewProvisioningTask(tenantID int64, payload CreationPayload, now time.Time) ProvisioningTask {
	return ProvisioningTask{
		TenantID:  tenantID,
		Payload:   payload,
		Attempt:   1,
		NotBefore: now,
	}
}

// Next returns the follow-up attempt, eligible after delay.
func (t ProvisioningTask) Next(now time.Time, delay time.Duration) ProvisioningTask {
	next := t
	next.Attempt = t.Attempt + 1
	next.NotBefore = now.Add(delay)
	return next
}

// Delay returns how long until the task becomes eligible, never negative.
func (t ProvisioningTask) Delay(now time.Time) time.Duration {
	if d := t.NotBefore.Sub(now); d > 0 {
		return d
	}
	return 0
}
