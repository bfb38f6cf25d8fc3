// README: Presence tracker; ingests rider GPS pings, throttles, and republishes to order rooms.
package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"deliverd/internal/modules/rooms"
	"deliverd/internal/types"
)

const EventRiderLocationUpdated = "rider_location_updated"

type Service struct {
	mu          sync.Mutex
	last        map[types.ID]Ping
	lastPublish map[types.ID]time.Time
	minInterval time.Duration
	geo         *Store // optional; nil in single-process mode
	router      *rooms.Router
	log         *slog.Logger
}

func NewService(router *rooms.Router, geo *Store, minInterval time.Duration, log *slog.Logger) *Service {
	return &Service{
		last:        make(map[types.ID]Ping),
		lastPublish: make(map[types.ID]time.Time),
		minInterval: minInterval,
		geo:         geo,
		router:      router,
		log:         log,
	}
}

// Report stores the rider's latest position (last-write-wins; pings arrive
// out of order and map position is approximate anyway) and republishes it to
// the order room and admins. Pings inside the throttle window update the
// stored position but are not republished.
func (s *Service) Report(ctx context.Context, p Ping) error {
	if p.Timestamp.IsZero() {
		p.Timestamp = time.Now()
	}

	s.mu.Lock()
	s.last[p.RiderID] = p
	publish := time.Since(s.lastPublish[p.RiderID]) >= s.minInterval
	if publish {
		s.lastPublish[p.RiderID] = time.Now()
	}
	s.mu.Unlock()

	if s.geo != nil {
		if err := s.geo.SetLocation(ctx, p); err != nil {
			s.log.Warn("geo store update failed", "rider_id", p.RiderID, "error", err)
		}
	}

	if !publish {
		return nil
	}
	if p.OrderID != "" {
		if err := s.router.Broadcast(ctx, rooms.OrderRoom(p.OrderID), EventRiderLocationUpdated, p); err != nil {
			return err
		}
	}
	return s.router.Broadcast(ctx, rooms.RoomAdmins, EventRiderLocationUpdated, p)
}

// Last returns the most recent ping seen for a rider in this process.
func (s *Service) Last(riderID types.ID) (Ping, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.last[riderID]
	return p, ok
}

// Forget drops a rider's presence, e.g. when they go off shift.
func (s *Service) Forget(ctx context.Context, riderID types.ID) {
	s.mu.Lock()
	delete(s.last, riderID)
	delete(s.lastPublish, riderID)
	s.mu.Unlock()

	if s.geo != nil {
		if err := s.geo.RemoveRider(ctx, riderID); err != nil {
			s.log.Warn("geo store remove failed", "rider_id", riderID, "error", err)
		}
	}
}
