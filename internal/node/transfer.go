package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rudransh-shrivastava/privosend/internal/protocol"
	"github.com/rudransh-shrivastava/privosend/internal/transfer"
	"github.com/rudransh-shrivastava/privosend/internal/transport/webrtc"
)

type Status int

const (
	StatusIdle Status = iota
	StatusWaitingForPeer
	StatusConnecting
	StatusTransferring
	StatusCompleted
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusWaitingForPeer:
		return "waiting-for-peer"
	case StatusConnecting:
		return "connecting"
	case StatusTransferring:
		return "transferring"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes a finished attempt. Data is only set for receives.
// Verified is false when the received byte count did not match the
// declared size.
type Result struct {
	Code     string
	Metadata protocol.Metadata
	Data     []byte
	Verified bool
}

// Transfer is one send or receive attempt running in the background.
type Transfer struct {
	Code string
	Role webrtc.Role

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}
	logger *slog.Logger

	mu       sync.Mutex
	status   Status
	progress transfer.Progress
	result   *Result
	err      error
	onStatus func(code string, status Status)
}

// Wait blocks until the attempt ends. A size mismatch returns both the
// unverified result and transfer.ErrSizeMismatch.
func (t *Transfer) Wait() (*Result, error) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.err
}

func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

func (t *Transfer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transfer) Progress() transfer.Progress {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.progress
}

// Reset cancels the attempt from any status, waits for the channel and the
// relay subscription to be released, and leaves the transfer Idle.
func (t *Transfer) Reset() {
	t.cancel(ErrUserCancelled)
	<-t.done
	t.setStatus(StatusIdle)
}

func (t *Transfer) setStatus(s Status) {
	t.mu.Lock()
	if t.status == s {
		t.mu.Unlock()
		return
	}
	t.status = s
	onStatus := t.onStatus
	t.mu.Unlock()

	t.logger.Debug("Transfer status", "status", s.String())
	if onStatus != nil {
		onStatus(t.Code, s)
	}
}

func (t *Transfer) setProgress(p transfer.Progress) {
	t.mu.Lock()
	t.progress = p
	t.mu.Unlock()
}

func (t *Transfer) finish(res *Result, err error) {
	if err != nil && errors.Is(context.Cause(t.ctx), ErrUserCancelled) {
		err = fmt.Errorf("%w: %v", ErrUserCancelled, err)
		res = nil
	}

	t.mu.Lock()
	t.result = res
	t.err = err
	t.mu.Unlock()

	switch {
	case errors.Is(err, ErrUserCancelled):
		t.logger.Info("Transfer cancelled")
		t.setStatus(StatusIdle)
	case err != nil:
		t.logger.Error("Transfer failed", "error", err)
		t.setStatus(StatusFailed)
	default:
		t.logger.Info("Transfer completed", "name", res.Metadata.Name, "size", res.Metadata.Size)
		t.setStatus(StatusCompleted)
	}
}
