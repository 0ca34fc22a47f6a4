package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSanitizeText(t *testing.T) {
	assert.Equal(t, "no budget", SanitizeText("  no\x00 budget\n"))
	assert.Equal(t, "ab", SanitizeString("a\x7fb"))
	assert.Equal(t, "abcd", SanitizeString("a\u0085b\u009fc\u2028d\u2029"))
	assert.Equal(t, "Café, Zürich", SanitizeText("\u0080Café, Zürich\u009b"))
	assert.Equal(t, 5, CharLength("héllo"))
}

func TestPatterns(t *testing.T) {
	assert.True(t, IsWord("Epic Tower, Block-A"))
	assert.False(t, IsWord("Epic; Tower"))

	assert.True(t, IsPersonName("Dave O'Neil"))
	assert.False(t, IsPersonName("D4ve"))

	assert.True(t, IsPhoneNumber("0722123456"))
	assert.False(t, IsPhoneNumber("12345"))
	assert.False(t, IsPhoneNumber("+254722123456"))

	assert.True(t, IsNumberPlate("KCA 123B"))
	assert.False(t, IsNumberPlate("kca 123b"))

	assert.True(t, IsClockTime("7:30"))
	assert.True(t, IsClockTime("23:59"))
	assert.False(t, IsClockTime("24:00"))
	assert.False(t, IsClockTime("12:60"))

	n, ok := ParsePositiveInt(" 4 ")
	assert.True(t, ok)
	assert.Equal(t, 4, n)
	_, ok = ParsePositiveInt("0")
	assert.False(t, ok)
}

func TestParseDateTime(t *testing.T) {
	got, err := ParseDateTime(" 22/11/2024 14:30 ", "02/01/2006 15:04", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 11, 22, 14, 30, 0, 0, time.UTC), got)

	_, err = ParseDateTime("2024-11-22 14:30", "02/01/2006 15:04", nil)
	assert.Error(t, err)
}

func TestIsRescheduleTimedOut(t *testing.T) {
	now := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	assert.True(t, IsRescheduleTimedOut(now.Add(59*time.Minute), now))
	assert.False(t, IsRescheduleTimedOut(now.Add(2*time.Hour), now))
}

func TestParseDateRange(t *testing.T) {
	r, err := ParseDateRange("after:2018-10-10;before:2018-10-12", "2006-01-02")
	require.NoError(t, err)
	require.NotNil(t, r.After)
	require.NotNil(t, r.Before)
	assert.Equal(t, 10, r.After.Day())
	assert.Equal(t, 12, r.Before.Day())

	r, err = ParseDateRange("before:2018-10-12", "2006-01-02")
	require.NoError(t, err)
	assert.Nil(t, r.After)

	r, err = ParseDateRange("", "2006-01-02")
	require.NoError(t, err)
	assert.True(t, r.IsZero())

	_, err = ParseDateRange("since:2018-10-10", "2006-01-02")
	assert.Error(t, err)
	_, err = ParseDateRange("after:10/10/2018", "2006-01-02")
	assert.Error(t, err)
}

func TestNextLabel(t *testing.T) {
	assert.Equal(t, "A", NextLabel(""))
	assert.Equal(t, "B", NextLabel("A"))
	assert.Equal(t, "AA", NextLabel("Z"))
	assert.Equal(t, "AB", NextLabel("AA"))
	assert.Equal(t, "BA", NextLabel("AZ"))
	assert.Equal(t, "AAA", NextLabel("ZZ"))
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := NewLogger(LoggerConfig{Level: "debug", OutputPath: path, Format: "json", ServiceName: "commute-approvals"})
	require.NoError(t, err)
	logger.Info("hello")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"service":"commute-approvals"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestNewLogger_UnknownLevelDefaultsToInfo(t *testing.T) {
	logger, err := NewLogger(LoggerConfig{Level: "verbose", OutputPath: "stderr"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}
