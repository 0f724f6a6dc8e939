package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NINAnor/tabmon-species-api/internal/conf"
	"github.com/NINAnor/tabmon-species-api/internal/validation"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(&conf.SessionSettings{
		CookieName: "tabmon_session",
		Secret:     "test-secret",
		MaxAge:     3600,
	})
	t.Cleanup(m.Close)
	return m
}

func TestAttachCreatesAndReusesSession(t *testing.T) {
	t.Parallel()
	m := testManager(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	st, err := m.Attach(rec, req)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Len(t, st.ID, 8)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)

	// A second request carrying the cookie resolves to the same state.
	req2 := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	for _, c := range cookies {
		req2.AddCookie(c)
	}
	st2, err := m.Attach(httptest.NewRecorder(), req2)
	require.NoError(t, err)
	assert.Equal(t, st.ID, st2.ID)
	assert.Same(t, st, st2)
}

func TestAttachWithoutCookieCreatesDistinctSessions(t *testing.T) {
	t.Parallel()
	m := testManager(t)

	st1, err := m.Attach(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	require.NoError(t, err)
	st2, err := m.Attach(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	require.NoError(t, err)
	assert.NotEqual(t, st1.ID, st2.ID)
}

func TestModeStateParamsChangeResets(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	st := m.state("abcd1234")

	st.Do(ModeNormal, func(ms *ModeState) {
		changed := ms.SetParams("Norway|dev1|Turdus merula|0.0")
		assert.True(t, changed)
		ms.Current = "clip"
		ms.Remaining = 10
		ms.MarkValidated(validation.ClipKey{Filename: "a.wav", StartTime: 3})
	})

	st.Do(ModeNormal, func(ms *ModeState) {
		// Same params: state survives.
		assert.False(t, ms.SetParams("Norway|dev1|Turdus merula|0.0"))
		assert.Equal(t, 9, ms.Remaining)
		assert.Len(t, ms.Validated, 1)

		// New params: clip state resets.
		assert.True(t, ms.SetParams("Norway|dev1|Parus major|0.0"))
		assert.Nil(t, ms.Current)
		assert.Empty(t, ms.Validated)
		assert.Equal(t, RemainingUnknown, ms.Remaining)
	})
}

func TestMarkValidatedDecrementsAndClearsCurrent(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	st := m.state("abcd1234")

	st.Do(ModePro, func(ms *ModeState) {
		ms.Current = "clip"
		ms.Remaining = 1
		ms.MarkValidated(validation.ClipKey{Filename: "a.wav", StartTime: 3})
		assert.Nil(t, ms.Current)
		assert.Equal(t, 0, ms.Remaining)

		// Never goes negative.
		ms.MarkValidated(validation.ClipKey{Filename: "b.wav", StartTime: 6})
		assert.Equal(t, 0, ms.Remaining)
	})
}

func TestModesAreIndependent(t *testing.T) {
	t.Parallel()
	m := testManager(t)
	st := m.state("abcd1234")

	st.Do(ModeNormal, func(ms *ModeState) {
		ms.MarkValidated(validation.ClipKey{Filename: "a.wav", StartTime: 3})
	})
	st.Do(ModeExpert, func(ms *ModeState) {
		assert.Empty(t, ms.Validated)
	})
}

func TestSweepDropsIdleSessions(t *testing.T) {
	t.Parallel()
	m := testManager(t)

	st := m.state("abcd1234")
	st.mu.Lock()
	st.lastSeen = time.Now().Add(-2 * time.Hour)
	st.mu.Unlock()

	m.sweep(time.Now())

	m.mu.Lock()
	_, exists := m.states["abcd1234"]
	m.mu.Unlock()
	assert.False(t, exists)
}
