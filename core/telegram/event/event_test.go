package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMessageCommand(t *testing.T) {
	cases := []struct {
		text, name, args string
		ok               bool
	}{
		{"/start", "/start", "", true},
		{"/send@grade_bot @alice", "/send", "@alice", true},
		{"  /Blocking   @bob  ", "/Blocking", "@bob", true},
		{"/send\n@alice", "/send", "@alice", true},
		{"/send\t@alice hi", "/send", "@alice hi", true},
		{"/", "", "", false},
		{"hello /start", "", "", false},
		{"", "", "", false},
	}
	for _, tc := range cases {
		name, args, ok := Message{Text: tc.text}.Command()
		assert.Equal(t, tc.ok, ok, tc.text)
		assert.Equal(t, tc.name, name, tc.text)
		assert.Equal(t, tc.args, args, tc.text)
	}
}

func TestSenderAndKind(t *testing.T) {
	var ev Inbound = Callback{Info: Meta{SenderID: 7}, Unique: "blocking"}
	assert.Equal(t, int64(7), Sender(ev))
	assert.Equal(t, KindCallback, ev.Kind())
	assert.Equal(t, "", Text(ev))
	assert.Equal(t, int64(0), Sender(nil))
}
