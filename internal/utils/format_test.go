package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0", Number(0))
	assert.Equal(t, "999", Number(999))
	assert.Equal(t, "1,000", Number(1000))
	assert.Equal(t, "1,234,567", Number(1234567))
}

func TestDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", Duration(500*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}

func TestBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "1.5 KiB", Bytes(1536))
	assert.Equal(t, "1.0 MiB", Bytes(1<<20))
	assert.Equal(t, "1.0 GiB", Bytes(1<<30))
}

func TestIsURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsURL("https://example.com/app"))
	assert.True(t, IsURL("http://example.com/app"))
	assert.False(t, IsURL("/usr/local/bin/app"))
	assert.False(t, IsURL("ftp://example.com/app"))
}

func TestTruncateDescription(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "app.dll", truncateDescription("app.dll"))

	exact := strings.Repeat("x", descLength)
	assert.Equal(t, exact, truncateDescription(exact))

	got := truncateDescription("wwwroot/assets/ünïcode-ünïcode-ünïcode.txt")
	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, descLength, utf8.RuneCountInString(got))
	assert.Equal(t, "..de-ünïcode-ünïcode.txt", got)
}

func TestProgressDisabled(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newProgress(&out, 100, false)
	p.Update(50, "app.dll")
	p.Finish()
	assert.Empty(t, out.String())
}

func TestProgressEnabled(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	p := newProgress(&out, 100, true)
	p.Update(40, "lib/app.dll")
	p.Update(100, "app.config")
	p.Finish()
	assert.NotEmpty(t, out.String())
}
