package instagram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/transport"
)

// Container processing states reported by the Graph API.
const (
	StateInProgress = "IN_PROGRESS"
	StateFinished   = "FINISHED"
	StateError      = "ERROR"
	StateExpired    = "EXPIRED"
	StateTimeout    = "TIMEOUT"
)

const (
	fullStatusFields    = "status_code,status,processing_progress"
	reducedStatusFields = "status_code,status"
)

// PollConfig bounds readiness polling. Timeout counts slept time only.
type PollConfig struct {
	Initial time.Duration
	Step    time.Duration
	Max     time.Duration
	Timeout time.Duration
}

// DefaultPollConfig polls after 5s, 10s, ... up to 30s apart for 3 minutes.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Initial: 5 * time.Second,
		Step:    5 * time.Second,
		Max:     30 * time.Second,
		Timeout: 180 * time.Second,
	}
}

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ContainerStatus is one poll observation.
type ContainerStatus struct {
	Code     string
	Message  string
	Progress int
}

// Ready reports a terminal success state.
func (s ContainerStatus) Ready() bool {
	switch s.Code {
	case StateFinished, "READY", "SUCCEEDED", "PUBLISHED":
		return true
	}
	return false
}

// Failed reports a terminal failure state.
func (s ContainerStatus) Failed() bool {
	return s.Code == StateError || s.Code == StateExpired
}

// Poller waits for a media container to finish processing.
type Poller struct {
	api   *transport.Client
	cfg   PollConfig
	sleep Sleeper
	log   logger.Logger
}

// NewPoller builds a Poller. Zero config fields take the defaults; a nil
// sleeper uses a context-aware timer.
func NewPoller(api *transport.Client, cfg PollConfig, sleep Sleeper, log logger.Logger) *Poller {
	def := DefaultPollConfig()
	if cfg.Initial <= 0 {
		cfg.Initial = def.Initial
	}
	if cfg.Step < 0 {
		cfg.Step = def.Step
	}
	if cfg.Max <= 0 {
		cfg.Max = def.Max
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if sleep == nil {
		sleep = sleepContext
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{api: api, cfg: cfg, sleep: sleep, log: log}
}

// Wait polls containerID until it is ready, fails, or the time budget is
// spent. The first poll happens immediately.
func (p *Poller) Wait(ctx context.Context, containerID string) error {
	var (
		elapsed  time.Duration
		interval = p.cfg.Initial
		last     ContainerStatus
	)
	for polls := 1; ; polls++ {
		st, err := p.Check(ctx, containerID)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn("container status unavailable", "container", containerID, "poll", polls, "error", err)
		case st.Ready():
			p.log.Info("container ready", "container", containerID, "polls", polls, "waited", elapsed.String())
			return nil
		case st.Failed():
			return publish.ProcessingError(publish.Instagram,
				fmt.Sprintf("container %s: %s", st.Code, firstNonEmpty(st.Message, "processing failed")), nil)
		default:
			last = st
			p.log.Debug("container processing", "container", containerID, "status", st.Code, "progress", st.Progress)
		}

		if elapsed >= p.cfg.Timeout {
			return publish.ProcessingError(publish.Instagram,
				fmt.Sprintf("container %s after %s (last status %s)", StateTimeout, p.cfg.Timeout, firstNonEmpty(last.Code, "unknown")), nil)
		}
		wait := min(interval, p.cfg.Timeout-elapsed)
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
		elapsed += wait
		interval = min(interval+p.cfg.Step, p.cfg.Max)
	}
}

// Check performs one poll, retrying once with fewer fields when the full
// field set is rejected.
func (p *Poller) Check(ctx context.Context, containerID string) (ContainerStatus, error) {
	resp, err := p.api.Do(ctx, transport.Request{
		Path:  "/" + containerID,
		Query: map[string]string{"fields": fullStatusFields},
	})
	if err != nil {
		if ctx.Err() != nil {
			return ContainerStatus{}, err
		}
		p.log.Debug("retrying status poll with reduced fields", "container", containerID, "error", err)
		resp, err = p.api.Do(ctx, transport.Request{
			Path:  "/" + containerID,
			Query: map[string]string{"fields": reducedStatusFields},
		})
		if err != nil {
			return ContainerStatus{}, err
		}
	}
	st := ContainerStatus{
		Code:     strings.ToUpper(strings.TrimSpace(resp.Get("status_code").String())),
		Message:  resp.Get("status").String(),
		Progress: int(resp.Get("processing_progress").Int()),
	}
	if st.Code == "" && st.Message != "" {
		// "Error: ..." / "Finished: ..." when only status is returned.
		head, _, _ := strings.Cut(st.Message, ":")
		st.Code = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(head), " ", "_"))
	}
	return st, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
