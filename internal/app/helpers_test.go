package app

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"glucoheart/internal/event"
	"glucoheart/internal/model"
	"glucoheart/internal/repository"
	"glucoheart/internal/testutil"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []event.Event
}

func (p *recordingPublisher) Publish(_ context.Context, evt event.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) named(name string) []event.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []event.Event
	for _, evt := range p.events {
		if evt.Name == name {
			out = append(out, evt)
		}
	}
	return out
}

type stubLimiter struct {
	allow bool
	err   error
}

func (l stubLimiter) Allow(context.Context, uint) (bool, time.Duration, error) {
	return l.allow, time.Second, l.err
}

type fixture struct {
	db      *gorm.DB
	store   *repository.Store
	pub     *recordingPublisher
	patient *model.User
	other   *model.User
	support *model.User
	admin   *model.User
	nurse   *model.User
	nurse2  *model.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	return &fixture{
		db:      db,
		store:   repository.NewStore(db),
		pub:     &recordingPublisher{},
		patient: testutil.SeedUser(t, db, "patient", model.RoleUser),
		other:   testutil.SeedUser(t, db, "other", model.RoleUser),
		support: testutil.SeedUser(t, db, "support", model.RoleSupport),
		admin:   testutil.SeedUser(t, db, "admin", model.RoleAdmin),
		nurse:   testutil.SeedUser(t, db, "nurse", model.RoleNurse),
		nurse2:  testutil.SeedUser(t, db, "nurse2", model.RoleNurse),
	}
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
