package webhook

import (
	"context"
	"sync"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/app/repository"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
	"gorm.io/gorm"
)

// fakeMeetings mimics the guarded updates of the meeting repository in memory
type fakeMeetings struct {
	mu       sync.Mutex
	meetings map[string]*models.Meeting
	err      error
}

func newFakeMeetings(meetings ...*models.Meeting) *fakeMeetings {
	f := &fakeMeetings{meetings: map[string]*models.Meeting{}}
	for _, m := range meetings {
		f.meetings[m.ID] = m
	}
	return f
}

func (f *fakeMeetings) get(id string) models.Meeting {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.meetings[id]
}

func (f *fakeMeetings) GetByID(_ context.Context, id string) (*models.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.meetings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMeetings) StartIfUpcoming(_ context.Context, id string, startedAt time.Time) (*models.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.meetings[id]
	if !ok || m.Status != models.MeetingStatusUpcoming {
		return nil, repository.ErrPreconditionFailed
	}
	m.Status = models.MeetingStatusActive
	m.StartedAt = &startedAt
	cp := *m
	return &cp, nil
}

func (f *fakeMeetings) RevertStart(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.meetings[id]
	if !ok || m.Status != models.MeetingStatusActive {
		return false, nil
	}
	m.Status = models.MeetingStatusUpcoming
	m.StartedAt = nil
	return true, nil
}

func (f *fakeMeetings) EndIfActive(_ context.Context, id string, endedAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	m, ok := f.meetings[id]
	if !ok || m.Status != models.MeetingStatusActive {
		return false, nil
	}
	m.Status = models.MeetingStatusProcessing
	m.EndedAt = &endedAt
	return true, nil
}

func (f *fakeMeetings) SetTranscriptURL(_ context.Context, id, url string) (*models.Meeting, error) {
	return f.setArtifact(id, func(m *models.Meeting) {
		if m.TranscriptURL == nil {
			m.TranscriptURL = &url
		}
	})
}

func (f *fakeMeetings) SetRecordingURL(_ context.Context, id, url string) (*models.Meeting, error) {
	return f.setArtifact(id, func(m *models.Meeting) {
		if m.RecordingURL == nil {
			m.RecordingURL = &url
		}
	})
}

func (f *fakeMeetings) setArtifact(id string, apply func(*models.Meeting)) (*models.Meeting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.meetings[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	apply(m)
	cp := *m
	return &cp, nil
}

type fakeAgents map[string]*models.Agent

func (f fakeAgents) GetByID(_ context.Context, id string) (*models.Agent, error) {
	a, ok := f[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return a, nil
}

type fakeSession struct {
	updates []streamvideo.SessionUpdate
	closed  bool
	err     error
}

func (s *fakeSession) UpdateSession(_ context.Context, update streamvideo.SessionUpdate) error {
	if s.err != nil {
		return s.err
	}
	s.updates = append(s.updates, update)
	return nil
}

func (s *fakeSession) Close() { s.closed = true }

type fakePlatform struct {
	mu           sync.Mutex
	connects     []streamvideo.ConnectAgentRequest
	sessions     []*fakeSession
	ended        []string
	disconnected []string
	participants []streamvideo.Participant
	connectErr   error
	updateErr    error
	endErr       error
	listErr      error
}

func (p *fakePlatform) EndCall(_ context.Context, callType, callID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.endErr != nil {
		return p.endErr
	}
	p.ended = append(p.ended, callType+":"+callID)
	return nil
}

func (p *fakePlatform) SessionParticipants(context.Context, string, string) ([]streamvideo.Participant, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.participants, p.listErr
}

func (p *fakePlatform) ConnectAgent(_ context.Context, req streamvideo.ConnectAgentRequest) (AgentSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.connects = append(p.connects, req)
	s := &fakeSession{err: p.updateErr}
	p.sessions = append(p.sessions, s)
	return s, nil
}

func (p *fakePlatform) DisconnectAgent(callID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected = append(p.disconnected, callID)
}

type sentJob struct {
	name string
	data map[string]interface{}
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentJob
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, name string, data map[string]interface{}) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentJob{name: name, data: data})
	return nil
}

type fakeDeliveries struct {
	mu       sync.Mutex
	nextID   uint
	rows     map[string]*models.WebhookDelivery
	released []uint
}

func newFakeDeliveries() *fakeDeliveries {
	return &fakeDeliveries{rows: map[string]*models.WebhookDelivery{}}
}

func (f *fakeDeliveries) CreateIfNotExists(_ context.Context, d *models.WebhookDelivery) (bool, *models.WebhookDelivery, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if stored, ok := f.rows[d.DeliveryID]; ok {
		cp := *stored
		return false, &cp, nil
	}
	f.nextID++
	d.ID = f.nextID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	cp := *d
	f.rows[d.DeliveryID] = &cp
	return true, d, nil
}

func (f *fakeDeliveries) MarkProcessed(_ context.Context, id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			now := time.Now()
			row.ProcessedAt = &now
			row.ProcessingError = processingError
		}
	}
	return nil
}

func (f *fakeDeliveries) Release(_ context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, row := range f.rows {
		if row.ID == id {
			delete(f.rows, key)
		}
	}
	f.released = append(f.released, id)
	return nil
}
