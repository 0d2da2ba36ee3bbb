package message_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flux-framework/flux-go/message"
)

// S1 — Encode/decode round trip.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	m, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	require.NoError(t, m.SetFlags(message.FlagTopic|message.FlagPayload))
	require.NoError(t, m.SetTopic("kvs.lookup"))
	require.NoError(t, m.PackTyped(map[string]string{"key": "a.b"}))
	require.NoError(t, m.SetMatchtag(7))
	require.NoError(t, m.SetNodeid(message.NodeAny))
	m.SetCred(message.Cred{UserID: 1000, RoleMask: message.RoleOwner})

	buf := m.Encode()

	decoded, err := message.Decode(buf)
	require.NoError(t, err)

	require.Equal(t, m.Type(), decoded.Type())
	require.Equal(t, m.Flags(), decoded.Flags())
	topic, _ := decoded.Topic()
	require.Equal(t, "kvs.lookup", topic)
	tag, err := decoded.Matchtag()
	require.NoError(t, err)
	require.EqualValues(t, 7, tag)
	nodeid, err := decoded.Nodeid()
	require.NoError(t, err)
	require.Equal(t, message.NodeAny, nodeid)
	require.Equal(t, message.Cred{UserID: 1000, RoleMask: message.RoleOwner}, decoded.Cred())

	var v struct {
		Key string `json:"key"`
	}
	require.NoError(t, decoded.UnpackTyped(&v))
	require.Equal(t, "a.b", v.Key)
}

func TestFlagsMutualExclusion(t *testing.T) {
	m, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	err = m.SetFlags(message.FlagStreaming | message.FlagNoResponse)
	require.Error(t, err)
}

func TestRoutingStack(t *testing.T) {
	m, err := message.New(message.TypeRequest)
	require.NoError(t, err)
	m.EnableRouting()
	require.NoError(t, m.Push([]byte("hop1")))
	require.NoError(t, m.Push([]byte("hop2")))
	require.NoError(t, m.Push([]byte("hop3")))
	require.Equal(t, 3, m.RouteCount())

	first, ok := m.RouteFirst()
	require.True(t, ok)
	require.Equal(t, []byte("hop3"), first)

	last, ok := m.RouteLast()
	require.True(t, ok)
	require.Equal(t, []byte("hop1"), last)

	popped, err := m.Pop()
	require.NoError(t, err)
	require.Equal(t, []byte("hop3"), popped)
	require.Equal(t, 2, m.RouteCount())
}

func TestRoutingRoundTripsOverWire(t *testing.T) {
	m, err := message.New(message.TypeEvent)
	require.NoError(t, err)
	m.EnableRouting()
	require.NoError(t, m.Push([]byte("a")))
	require.NoError(t, m.Push([]byte("bb")))
	require.NoError(t, m.SetFlags(message.FlagRoute|message.FlagTopic))
	require.NoError(t, m.SetTopic("heartbeat"))

	decoded, err := message.Decode(m.Encode())
	require.NoError(t, err)
	require.Equal(t, 2, decoded.RouteCount())
	first, _ := decoded.RouteFirst()
	require.Equal(t, []byte("bb"), first)
}

func TestAuthorizationPredicate(t *testing.T) {
	cases := []struct {
		name     string
		cred     message.Cred
		expected uint32
		want     bool
	}{
		{"owner always granted", message.Cred{RoleMask: message.RoleOwner}, 42, true},
		{"user matching", message.Cred{UserID: 42, RoleMask: message.RoleUser}, 42, true},
		{"user mismatch", message.Cred{UserID: 1, RoleMask: message.RoleUser}, 42, false},
		{"user unknown", message.Cred{UserID: message.UserUnknown, RoleMask: message.RoleUser}, message.UserUnknown, false},
		{"neither role", message.Cred{UserID: 42}, 42, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, message.Authorized(c.cred, c.expected))
		})
	}
}

func TestTopicGlobMatch(t *testing.T) {
	require.True(t, message.TopicGlobMatch("", "anything"))
	require.True(t, message.TopicGlobMatch("*", "anything"))
	require.True(t, message.TopicGlobMatch("foo.*", "foo.bar"))
	require.False(t, message.TopicGlobMatch("foo.*", "foo"))
	require.False(t, message.TopicGlobMatch("foo.*", "foobar"))
	require.True(t, message.TopicGlobMatch("exact.topic", "exact.topic"))
	require.False(t, message.TopicGlobMatch("exact.topic", "exact.topicx"))
}

func TestCopyPayloadDrop(t *testing.T) {
	m, err := message.New(message.TypeResponse)
	require.NoError(t, err)
	require.NoError(t, m.PackTyped(map[string]int{"n": 1}))

	withPayload := m.Copy(true)
	p, ok := withPayload.Payload()
	require.True(t, ok)
	require.NotEmpty(t, p)

	withoutPayload := m.Copy(false)
	_, ok = withoutPayload.Payload()
	require.False(t, ok)
}
