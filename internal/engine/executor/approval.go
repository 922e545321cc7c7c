// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package executor

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/baton/internal/notify"
	"github.com/tombee/baton/pkg/workflow"
)

// approvalTokenBytes is the entropy of an approval token. 32 bytes encode to
// 43 URL-safe characters.
const approvalTokenBytes = 32

// Approval issues an approval token, notifies the approvers, and pauses the
// run until a decision arrives through a resume.
type Approval struct {
	notifier notify.Notifier
	baseURL  string
	logger   *slog.Logger
}

// NewApproval creates the approval executor. baseURL is the public prefix
// approval links are built from.
func NewApproval(notifier notify.Notifier, baseURL string, logger *slog.Logger) *Approval {
	if logger == nil {
		logger = slog.Default()
	}
	return &Approval{
		notifier: notifier,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		logger:   logger,
	}
}

// Execute records a pending approval in the runtime context, notifies each
// approver best-effort, and pauses the run.
func (a *Approval) Execute(ctx context.Context, runCtx *workflow.Context, stepID string, config map[string]any) (*Result, error) {
	cfg, err := workflow.ParseApprovalConfig(config)
	if err != nil {
		return nil, err
	}

	token, err := newApprovalToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate approval token: %w", err)
	}

	// The approval record lands in the context before anyone is notified,
	// so a decision can never arrive for a token the run does not know.
	runCtx.SetRuntime(stepID+"_approval", map[string]any{
		"token":     token,
		"approvers": cfg.Approvers,
		"status":    "pending",
	})

	approvalURL := a.baseURL + "/approvals/" + token
	for _, approver := range cfg.Approvers {
		if err := a.notifier.Notify(ctx, approver, approvalURL); err != nil {
			// Notification is best effort; the approval stands regardless.
			a.logger.WarnContext(ctx, "approval notification failed",
				"step_id", stepID,
				"approver", approver,
				"error", err,
			)
		}
	}

	return &Result{
		Pause:         true,
		WaitingFor:    WaitingForApproval,
		ApprovalToken: token,
		Approvers:     cfg.Approvers,
	}, nil
}

// newApprovalToken returns an unpadded URL-safe token with
// approvalTokenBytes of entropy.
func newApprovalToken() (string, error) {
	buf := make([]byte, approvalTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
