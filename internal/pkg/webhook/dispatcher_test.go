package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ManuelReschke/ApexAgent/app/models"
	"github.com/ManuelReschke/ApexAgent/internal/pkg/streamvideo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

type dispatcherFixture struct {
	meetings   *fakeMeetings
	agents     fakeAgents
	platform   *fakePlatform
	notifier   *fakeNotifier
	dispatcher *Dispatcher
}

func newDispatcherFixture(meetings ...*models.Meeting) *dispatcherFixture {
	f := &dispatcherFixture{
		meetings: newFakeMeetings(meetings...),
		agents: fakeAgents{
			"a1": {ID: "a1", Name: "Coach", UserID: "u1", Instructions: "Coach the team."},
		},
		platform: &fakePlatform{},
		notifier: &fakeNotifier{},
	}
	f.dispatcher = NewDispatcher(Dependencies{
		Meetings: f.meetings,
		Agents:   f.agents,
		Platform: f.platform,
		Notifier: f.notifier,
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func meetingIn(id string, status models.MeetingStatus) *models.Meeting {
	return &models.Meeting{ID: id, Name: "Sync", UserID: "u1", AgentID: "a1", Status: status}
}

func startedEvent(id string) SessionStarted {
	return SessionStarted{Meta: Meta{Type: TypeSessionStarted, MeetingID: id, CallType: "default"}}
}

func TestSessionStartedConnectsAgent(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusUpcoming))

	res, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, res.Outcome)

	m := f.meetings.get("m1")
	assert.Equal(t, models.MeetingStatusActive, m.Status)
	require.NotNil(t, m.StartedAt)
	assert.Equal(t, fixedNow, *m.StartedAt)

	require.Len(t, f.platform.connects, 1)
	assert.Equal(t, streamvideo.ConnectAgentRequest{CallType: "default", CallID: "m1", AgentUserID: "a1"}, f.platform.connects[0])
	require.Len(t, f.platform.sessions, 1)
	assert.Equal(t, []streamvideo.SessionUpdate{{Instructions: "Coach the team."}}, f.platform.sessions[0].updates)
}

func TestSessionStartedRejectedOutsideUpcoming(t *testing.T) {
	for _, status := range []models.MeetingStatus{
		models.MeetingStatusActive,
		models.MeetingStatusProcessing,
		models.MeetingStatusCompleted,
		models.MeetingStatusCancelled,
	} {
		t.Run(string(status), func(t *testing.T) {
			f := newDispatcherFixture(meetingIn("m1", status))

			_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
			assert.ErrorIs(t, err, ErrMeetingNotFound)
			assert.Equal(t, 400, StatusCode(err))

			m := f.meetings.get("m1")
			assert.Equal(t, status, m.Status)
			assert.Nil(t, m.StartedAt)
			assert.Empty(t, f.platform.connects)
		})
	}
}

func TestSessionStartedUnknownMeeting(t *testing.T) {
	f := newDispatcherFixture()

	_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("nope"))
	assert.ErrorIs(t, err, ErrMeetingNotFound)
	assert.Empty(t, f.platform.connects)
}

func TestSessionStartedMissingAgent(t *testing.T) {
	m := meetingIn("m1", models.MeetingStatusUpcoming)
	m.AgentID = "gone"
	f := newDispatcherFixture(m)

	_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	assert.ErrorIs(t, err, ErrAgentNotFound)
	assert.Equal(t, 400, StatusCode(err))
	assert.Empty(t, f.platform.connects)
}

func TestSessionStartedPlatformFailureRevertsStart(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusUpcoming))
	f.platform.connectErr = errors.New("dial failed")

	_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	require.Error(t, err)
	assert.Equal(t, 500, StatusCode(err))

	m := f.meetings.get("m1")
	assert.Equal(t, models.MeetingStatusUpcoming, m.Status)
	assert.Nil(t, m.StartedAt)

	// the platform's redelivery succeeds
	f.platform.connectErr = nil
	_, err = f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	require.NoError(t, err)
	assert.Equal(t, models.MeetingStatusActive, f.meetings.get("m1").Status)
}

func TestSessionStartedUpdateFailureClosesSession(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusUpcoming))
	f.platform.updateErr = errors.New("socket closed")

	_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	require.Error(t, err)
	require.Len(t, f.platform.sessions, 1)
	assert.True(t, f.platform.sessions[0].closed)
	assert.Equal(t, models.MeetingStatusUpcoming, f.meetings.get("m1").Status)
}

func TestSessionEndedIsIdempotent(t *testing.T) {
	start := fixedNow.Add(-10 * time.Minute)
	m := meetingIn("m1", models.MeetingStatusActive)
	m.StartedAt = &start
	f := newDispatcherFixture(m)
	ev := SessionEnded{Meta: Meta{Type: TypeSessionEnded, MeetingID: "m1"}}

	res, err := f.dispatcher.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeEnded, res.Outcome)

	stored := f.meetings.get("m1")
	assert.Equal(t, models.MeetingStatusProcessing, stored.Status)
	require.NotNil(t, stored.EndedAt)
	endedAt := *stored.EndedAt

	f.dispatcher.now = func() time.Time { return fixedNow.Add(time.Hour) }
	res, err = f.dispatcher.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoop, res.Outcome)

	stored = f.meetings.get("m1")
	assert.Equal(t, models.MeetingStatusProcessing, stored.Status)
	assert.Equal(t, endedAt, *stored.EndedAt)
	assert.Equal(t, []string{"m1", "m1"}, f.platform.disconnected)
}

func TestSessionEndedNotActiveIsNoop(t *testing.T) {
	for _, status := range []models.MeetingStatus{
		models.MeetingStatusUpcoming,
		models.MeetingStatusCompleted,
		models.MeetingStatusCancelled,
	} {
		f := newDispatcherFixture(meetingIn("m1", status))

		res, err := f.dispatcher.Dispatch(context.Background(), SessionEnded{Meta: Meta{Type: TypeSessionEnded, MeetingID: "m1"}})
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoop, res.Outcome)
		assert.Equal(t, status, f.meetings.get("m1").Status)
		assert.Nil(t, f.meetings.get("m1").EndedAt)
	}
}

func TestTranscriptionReadyNotifies(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusProcessing))
	ev := TranscriptionReady{Meta: Meta{Type: TypeTranscriptionReady, MeetingID: "m1"}, TranscriptURL: "https://x/t.json"}

	res, err := f.dispatcher.Dispatch(context.Background(), ev)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTranscriptSet, res.Outcome)

	m := f.meetings.get("m1")
	require.NotNil(t, m.TranscriptURL)
	assert.Equal(t, "https://x/t.json", *m.TranscriptURL)

	require.Len(t, f.notifier.sent, 1)
	assert.Equal(t, ProcessingEvent, f.notifier.sent[0].name)
	assert.Equal(t, map[string]interface{}{"meetingId": "m1", "transcriptUrl": "https://x/t.json"}, f.notifier.sent[0].data)
}

func TestTranscriptionReadyKeepsFirstURL(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusProcessing))
	first := TranscriptionReady{Meta: Meta{Type: TypeTranscriptionReady, MeetingID: "m1"}, TranscriptURL: "https://x/first.json"}
	second := TranscriptionReady{Meta: Meta{Type: TypeTranscriptionReady, MeetingID: "m1"}, TranscriptURL: "https://x/second.json"}

	_, err := f.dispatcher.Dispatch(context.Background(), first)
	require.NoError(t, err)
	res, err := f.dispatcher.Dispatch(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeTranscriptSet, res.Outcome)

	assert.Equal(t, "https://x/first.json", *f.meetings.get("m1").TranscriptURL)
	require.Len(t, f.notifier.sent, 2)
	assert.Equal(t, "https://x/first.json", f.notifier.sent[1].data["transcriptUrl"])
}

func TestArtifactsAcceptedInAnyStatus(t *testing.T) {
	for _, status := range models.MeetingStatuses {
		t.Run(string(status), func(t *testing.T) {
			f := newDispatcherFixture(meetingIn("m1", status))
			rec := RecordingReady{Meta: Meta{Type: TypeRecordingReady, MeetingID: "m1"}, RecordingURL: "https://x/r.mp4"}

			for i := 0; i < 2; i++ {
				res, err := f.dispatcher.Dispatch(context.Background(), rec)
				require.NoError(t, err)
				assert.Equal(t, OutcomeRecordingSet, res.Outcome)
			}
			m := f.meetings.get("m1")
			require.NotNil(t, m.RecordingURL)
			assert.Equal(t, "https://x/r.mp4", *m.RecordingURL)
			assert.Equal(t, status, m.Status)
		})
	}
}

func TestTranscriptionReadyNotifierFailureKeepsURL(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusProcessing))
	f.notifier.err = errors.New("redis down")

	_, err := f.dispatcher.Dispatch(context.Background(), TranscriptionReady{
		Meta:          Meta{Type: TypeTranscriptionReady, MeetingID: "m1"},
		TranscriptURL: "https://x/t.json",
	})
	require.NoError(t, err)
	require.NotNil(t, f.meetings.get("m1").TranscriptURL)
}

func TestArtifactForUnknownMeeting(t *testing.T) {
	f := newDispatcherFixture()

	_, err := f.dispatcher.Dispatch(context.Background(), TranscriptionReady{
		Meta:          Meta{Type: TypeTranscriptionReady, MeetingID: "nope"},
		TranscriptURL: "https://x/t.json",
	})
	assert.ErrorIs(t, err, ErrMeetingNotFound)
	assert.Empty(t, f.notifier.sent)

	_, err = f.dispatcher.Dispatch(context.Background(), RecordingReady{
		Meta:         Meta{Type: TypeRecordingReady, MeetingID: "nope"},
		RecordingURL: "https://x/r.mp4",
	})
	assert.ErrorIs(t, err, ErrMeetingNotFound)
}

func TestStoreFailureIsServerError(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusUpcoming))
	f.meetings.err = errors.New("connection refused")

	_, err := f.dispatcher.Dispatch(context.Background(), startedEvent("m1"))
	assert.Equal(t, 500, StatusCode(err))
}

func participant(userID, sessionID string) streamvideo.Participant {
	return streamvideo.Participant{UserSessionID: sessionID, User: streamvideo.User{ID: userID}}
}

func TestParticipantLeft(t *testing.T) {
	leaving := ParticipantLeft{
		Meta:          Meta{Type: TypeParticipantLeft, MeetingID: "m1", CallType: "default"},
		UserID:        "u1",
		UserSessionID: "s-u1",
	}

	tests := []struct {
		name         string
		meeting      *models.Meeting
		event        ParticipantLeft
		participants []streamvideo.Participant
		wantOutcome  Outcome
		wantEnded    bool
	}{
		{
			name:         "last human leaves, agent remains",
			meeting:      meetingIn("m1", models.MeetingStatusActive),
			event:        leaving,
			participants: []streamvideo.Participant{participant("a1", "s-a1"), participant("u1", "s-u1")},
			wantOutcome:  OutcomeCallEnded,
			wantEnded:    true,
		},
		{
			name:         "another human remains",
			meeting:      meetingIn("m1", models.MeetingStatusActive),
			event:        leaving,
			participants: []streamvideo.Participant{participant("a1", "s-a1"), participant("u2", "s-u2")},
			wantOutcome:  OutcomeNoop,
		},
		{
			name:        "agent leaves",
			meeting:     meetingIn("m1", models.MeetingStatusActive),
			event:       ParticipantLeft{Meta: leaving.Meta, UserID: "a1", UserSessionID: "s-a1"},
			wantOutcome: OutcomeNoop,
		},
		{
			name:        "call already over",
			meeting:     meetingIn("m1", models.MeetingStatusProcessing),
			event:       leaving,
			wantOutcome: OutcomeNoop,
		},
		{
			name:         "unknown meeting with nobody left",
			event:        leaving,
			participants: nil,
			wantOutcome:  OutcomeCallEnded,
			wantEnded:    true,
		},
		{
			name:         "unknown meeting counts everyone as human",
			event:        leaving,
			participants: []streamvideo.Participant{participant("a1", "s-a1")},
			wantOutcome:  OutcomeNoop,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f *dispatcherFixture
			if tt.meeting != nil {
				f = newDispatcherFixture(tt.meeting)
			} else {
				f = newDispatcherFixture()
			}
			f.platform.participants = tt.participants

			res, err := f.dispatcher.Dispatch(context.Background(), tt.event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOutcome, res.Outcome)
			if tt.wantEnded {
				assert.Equal(t, []string{"default:m1"}, f.platform.ended)
			} else {
				assert.Empty(t, f.platform.ended)
			}
		})
	}
}

func TestParticipantLeftPlatformErrors(t *testing.T) {
	f := newDispatcherFixture(meetingIn("m1", models.MeetingStatusActive))
	f.platform.listErr = errors.New("timeout")
	ev := ParticipantLeft{Meta: Meta{Type: TypeParticipantLeft, MeetingID: "m1"}, UserID: "u1"}

	_, err := f.dispatcher.Dispatch(context.Background(), ev)
	assert.Equal(t, 500, StatusCode(err))

	f.platform.listErr = nil
	f.platform.endErr = errors.New("boom")
	_, err = f.dispatcher.Dispatch(context.Background(), ev)
	assert.Equal(t, 500, StatusCode(err))
}

func TestUnrecognizedIsIgnored(t *testing.T) {
	f := newDispatcherFixture()

	res, err := f.dispatcher.Dispatch(context.Background(), Unrecognized{Meta: Meta{Type: "call.created"}})
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, res.Outcome)
}
