package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries login-blocking work such as verification codes.
	QueueCritical = "critical"
	// TaskTypeSendVerificationCode delivers a step-up verification code.
	TaskTypeSendVerificationCode = "auth:send_verification_code"
)

// VerificationCodePayload describes one verification code delivery.
type VerificationCodePayload struct {
	AdminID   string `json:"admin_id"`
	To        string `json:"to"`
	Name      string `json:"name"`
	Code      string `json:"code"`
	ExpiresIn int    `json:"expires_in"`
	// IssuedAt lets the worker drop codes that already expired in the queue.
	IssuedAt time.Time `json:"issued_at"`
}

// NewVerificationCodeTask constructs an Asynq task.
func NewVerificationCodeTask(payload VerificationCodePayload) (*asynq.Task, error) {
	if payload.To == "" {
		return nil, fmt.Errorf("jobs: verification code for %s has no recipient", payload.AdminID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendVerificationCode, data), nil
}
