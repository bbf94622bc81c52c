package netutil

import (
	"context"
	"errors"
	"net"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(nil))
	assert.False(t, ShouldRetry(errors.New("boom")))
	assert.False(t, ShouldRetry(context.Canceled))
	assert.True(t, ShouldRetry(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.True(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api", Err: timeoutErr{}}))
	assert.False(t, ShouldRetry(&url.Error{Op: "Post", URL: "https://api", Err: errors.New("eof")}))
}

func TestIsReadOnly(t *testing.T) {
	parse := func(raw string) *url.URL {
		u, err := url.Parse(raw)
		if err != nil {
			t.Fatal(err)
		}
		return u
	}
	assert.True(t, IsReadOnly(parse("https://api.telegram.org/bot123:abc/getUpdates")))
	assert.True(t, IsReadOnly(parse("https://api.telegram.org/bot123:abc/getChat")))
	assert.True(t, IsReadOnly(parse("https://api.telegram.org/file/bot123:abc/documents/file_1.ipynb")))
	assert.False(t, IsReadOnly(parse("https://api.telegram.org/bot123:abc/sendMessage")))
	assert.False(t, IsReadOnly(parse("https://api.telegram.org/bot123:abc/answerCallbackQuery")))
	assert.False(t, IsReadOnly(nil))
	assert.Equal(t, "senddocument", Method(parse("https://api.telegram.org/bot1/sendDocument")))
}
