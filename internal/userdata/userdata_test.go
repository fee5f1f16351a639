package userdata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentials_SetGetRemove(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SetCredential("claude-code", "tok-abc"))
	creds, err := s.Credentials()
	require.NoError(t, err)
	require.Equal(t, "tok-abc", creds["claude-code"])

	require.NoError(t, s.RemoveCredential("claude-code"))
	creds, err = s.Credentials()
	require.NoError(t, err)
	_, ok := creds["claude-code"]
	require.False(t, ok)
}

func TestSettings_RoundTripsUnknownKeys(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveSettings(Settings{SetupComplete: true, Extra: map[string]any{"theme": "dark"}}))

	got, err := s.GetSettings()
	require.NoError(t, err)
	require.True(t, got.SetupComplete)
	require.Equal(t, "dark", got.Extra["theme"])
}

func TestSessionMetadata_ListSortsByCreatedAt(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveSessionMetadata("later", SessionMetadata{CreatedAt: "2026-02-01T00:00:00Z"}))
	require.NoError(t, s.SaveSessionMetadata("earlier", SessionMetadata{CreatedAt: "2026-01-01T00:00:00Z"}))

	ids, err := s.ListSessions()
	require.NoError(t, err)
	require.Equal(t, []string{"earlier", "later"}, ids)
}

func TestSessionTranscript_SaveAndRead(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveSessionTranscript("sess-1", []byte(`{"messages":[]}`)))
	data, err := s.SessionTranscript("sess-1")
	require.NoError(t, err)
	require.JSONEq(t, `{"messages":[]}`, string(data))
}

func TestDeleteSession_RemovesMetadataAndTranscript(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.SaveSessionMetadata("sess-1", SessionMetadata{CreatedAt: "2026-01-01T00:00:00Z"}))
	require.NoError(t, s.SaveSessionTranscript("sess-1", []byte(`{}`)))

	require.NoError(t, s.DeleteSession("sess-1"))

	meta, err := s.SessionsMetadata()
	require.NoError(t, err)
	_, ok := meta["sess-1"]
	require.False(t, ok)

	data, err := s.SessionTranscript("sess-1")
	require.NoError(t, err)
	require.Nil(t, data)
}

func TestSessionTranscript_MissingReturnsNil(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	data, err := s.SessionTranscript("nope")
	require.NoError(t, err)
	require.Nil(t, data)
}
