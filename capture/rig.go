package capture

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nvr-ai/go-multiview/fusion"
)

// Camera binds a camera id to its source.
type Camera struct {
	ID     string
	Source Source
}

// RigConfig tunes the capture loops.
type RigConfig struct {
	// RetryDelay is the pause after a failed read.
	RetryDelay time.Duration
	// MaxFailures is the number of consecutive failed reads after which a
	// camera is given up. Zero retries forever.
	MaxFailures int
	// MaxAge marks frames older than this as missing in snapshots. Zero
	// accepts frames of any age.
	MaxAge time.Duration
}

// DefaultRigConfig returns the default capture loop settings.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		RetryDelay:  100 * time.Millisecond,
		MaxFailures: 50,
		MaxAge:      2 * time.Second,
	}
}

// Rig runs one capture loop per camera and keeps the latest frame of each.
type Rig struct {
	config  RigConfig
	cameras []Camera
	slots   map[string]*Slot
	logger  *zap.Logger
	now     func() time.Time
}

// NewRig creates a rig over the given cameras. The first camera is the
// reference view of snapshots.
//
// Arguments:
//   - cameras: The cameras, in reference order.
//   - config: The loop settings.
//   - logger: The logger; nil disables logging.
//
// Returns:
//   - *Rig: The rig.
//   - error: An error if a camera id is empty or repeated, or a source is nil.
func NewRig(cameras []Camera, config RigConfig, logger *zap.Logger) (*Rig, error) {
	if len(cameras) == 0 {
		return nil, errors.New("capture: no cameras")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	slots := make(map[string]*Slot, len(cameras))
	for i, c := range cameras {
		if c.ID == "" {
			return nil, errors.Errorf("capture: camera %d has an empty id", i)
		}
		if c.Source == nil {
			return nil, errors.Errorf("capture: camera %s has no source", c.ID)
		}
		if _, ok := slots[c.ID]; ok {
			return nil, errors.Errorf("capture: duplicate camera id %s", c.ID)
		}
		slots[c.ID] = &Slot{}
	}

	return &Rig{
		config:  config,
		cameras: append([]Camera(nil), cameras...),
		slots:   slots,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Run captures until ctx is canceled or every camera has stopped. Sources are
// closed before Run returns.
//
// Returns:
//   - error: The first camera that exceeded MaxFailures, or nil.
func (r *Rig) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range r.cameras {
		g.Go(func() error {
			defer func() {
				if err := c.Source.Close(); err != nil {
					r.logger.Warn("closing camera", zap.String("camera", c.ID), zap.Error(err))
				}
			}()
			return r.loop(ctx, c)
		})
	}
	return g.Wait()
}

func (r *Rig) loop(ctx context.Context, c Camera) error {
	slot := r.slots[c.ID]
	log := r.logger.With(zap.String("camera", c.ID))

	var seq uint64
	failures := 0
	for ctx.Err() == nil {
		img, err := c.Source.Read()
		if errors.Is(err, ErrClosed) {
			log.Info("camera stream ended")
			return nil
		}
		if err != nil {
			failures++
			log.Warn("frame read failed", zap.Int("consecutive", failures), zap.Error(err))
			if r.config.MaxFailures > 0 && failures >= r.config.MaxFailures {
				return errors.Wrapf(err, "camera %s failed %d consecutive reads", c.ID, failures)
			}
			select {
			case <-ctx.Done():
			case <-time.After(r.config.RetryDelay):
			}
			continue
		}

		failures = 0
		seq++
		slot.Store(&Frame{Camera: c.ID, Image: img, Seq: seq, At: r.now()})
	}
	return nil
}

// Latest returns the newest frame of a camera, or nil.
func (r *Rig) Latest(camera string) *Frame {
	slot, ok := r.slots[camera]
	if !ok {
		return nil
	}
	return slot.Load()
}

// Snapshot returns the latest frame of every camera in reference order.
// Cameras without a fresh frame are returned with a nil image, which the
// fusion engine reports as a missing view.
func (r *Rig) Snapshot() []fusion.Frame {
	now := r.now()
	frames := make([]fusion.Frame, len(r.cameras))
	for i, c := range r.cameras {
		frames[i].Camera = c.ID
		f := r.slots[c.ID].Load()
		if f == nil {
			continue
		}
		if r.config.MaxAge > 0 && now.Sub(f.At) > r.config.MaxAge {
			continue
		}
		frames[i].Image = f.Image
	}
	return frames
}

// WaitReady blocks until every camera has produced a frame.
func (r *Rig) WaitReady(ctx context.Context, poll time.Duration) error {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		ready := true
		for _, c := range r.cameras {
			if r.slots[c.ID].Load() == nil {
				ready = false
				break
			}
		}
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "waiting for cameras")
		case <-ticker.C:
		}
	}
}
