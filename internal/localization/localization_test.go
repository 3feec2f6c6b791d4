package localization_test

import (
	"os"
	"path/filepath"
	"testing"

	"classhub/backend/internal/localization"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocalizer(t *testing.T) *localization.Localizer {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"),
		[]byte(`{"push.new_message":"New message: %s","bot.linked":"Linked."}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "uk.json"),
		[]byte(`{"push.new_message":"Нове повідомлення: %s"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"),
		[]byte("ignored"), 0o644))

	loc, err := localization.NewLocalizer(dir)
	require.NoError(t, err)
	return loc
}

func TestGetString(t *testing.T) {
	loc := newTestLocalizer(t)

	assert.Equal(t, "Linked.", loc.T("en", "bot.linked"))
	assert.Equal(t, "Нове повідомлення: %s", loc.T("uk", "push.new_message"))
}

// TestFallbacks verifies the two-step degradation: missing key in the chosen
// language falls back to English, and an unknown key falls back to itself.
func TestFallbacks(t *testing.T) {
	loc := newTestLocalizer(t)

	assert.Equal(t, "Linked.", loc.T("uk", "bot.linked"))
	assert.Equal(t, "Linked.", loc.T("de", "bot.linked"))
	assert.Equal(t, "bot.unknown", loc.T("en", "bot.unknown"))
}

func TestTf(t *testing.T) {
	loc := newTestLocalizer(t)

	assert.Equal(t, "New message: alice: hi", loc.Tf("en", "push.new_message", "alice: hi"))
	assert.Equal(t, "Нове повідомлення: привіт", loc.Tf("uk", "push.new_message", "привіт"))
}

func TestNewLocalizer_MissingDir(t *testing.T) {
	_, err := localization.NewLocalizer("/does/not/exist")
	assert.Error(t, err)
}

func TestNewLocalizer_BadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte("{broken"), 0o644))

	_, err := localization.NewLocalizer(dir)
	assert.Error(t, err)
}
