package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectionBucket(t *testing.T) {
	assert.Equal(t, BucketAgent, DirectionOutgoing.Bucket())
	assert.Equal(t, BucketUser, DirectionIncoming.Bucket())
}

func TestEventDirection(t *testing.T) {
	assert.Equal(t, DirectionIncoming, (&IncomingEvent{}).Direction())
	assert.Equal(t, DirectionOutgoing, (&IncomingEvent{IsEcho: true}).Direction())
	assert.Equal(t, DirectionOutgoing, (&IncomingEvent{DirectionHint: "outgoing"}).Direction())
	assert.Equal(t, DirectionIncoming, (&IncomingEvent{DirectionHint: "incoming"}).Direction())
}

func TestEventTime(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ev := &IncomingEvent{TimestampMS: at.UnixMilli()}
	assert.Equal(t, at, ev.EventTime())

	// Нулевая метка времени означает "сейчас"
	before := time.Now().UTC().Add(-time.Second)
	got := (&IncomingEvent{}).EventTime()
	assert.True(t, got.After(before), "получено %s", got)
}

func TestTruncateExternalID(t *testing.T) {
	assert.Equal(t, "mid.abc123", TruncateExternalID("mid.abc123"))

	long := strings.Repeat("x", 300)
	hashed := TruncateExternalID(long)
	assert.True(t, strings.HasPrefix(hashed, "sha256:"), "получено %q", hashed)
	assert.Len(t, hashed, len("sha256:")+64)
	assert.Equal(t, hashed, TruncateExternalID(long))
	assert.NotEqual(t, hashed, TruncateExternalID(strings.Repeat("y", 300)))

	// Ровно на границе значение не хэшируется
	edge := strings.Repeat("a", 200)
	assert.Equal(t, edge, TruncateExternalID(edge))
}

func TestNewRawLogEntry(t *testing.T) {
	at := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	ev := &IncomingEvent{
		Platform:          PlatformInstagram,
		CounterpartyID:    "u1",
		PlatformAccountID: "acc",
		ExternalMessageID: "mid.42",
		Text:              "Привет",
		Attachments:       []Attachment{{Type: "image", URL: "http://x/1.jpg"}},
		TimestampMS:       at.UnixMilli(),
		Referral:          `{"ad_id":"123"}`,
	}

	entry := NewRawLogEntry(ev)
	require.NotNil(t, entry)
	assert.NotEqual(t, "", entry.ID.String())
	assert.Equal(t, PlatformInstagram, entry.Platform)
	assert.Equal(t, "u1", entry.CounterpartyID)
	assert.Equal(t, "acc", entry.AccountID)
	assert.Equal(t, DirectionIncoming, entry.Direction)
	assert.Equal(t, "Привет", entry.Text)
	assert.Contains(t, entry.Attachments, `"url":"http://x/1.jpg"`)
	assert.Equal(t, at.Unix(), entry.EventTS)
	assert.False(t, entry.FromTicklegram)
	require.NotNil(t, entry.ExternalMessageID)
	assert.Equal(t, "mid.42", *entry.ExternalMessageID)
	require.NotNil(t, entry.Referral)
	assert.Equal(t, `{"ad_id":"123"}`, *entry.Referral)
	assert.Contains(t, entry.Payload, `"counterparty_id":"u1"`)

	t.Run("без внешнего идентификатора", func(t *testing.T) {
		entry := NewRawLogEntry(&IncomingEvent{Platform: PlatformFacebook, CounterpartyID: "u2", PlatformAccountID: "acc"})
		assert.Nil(t, entry.ExternalMessageID)
		assert.Nil(t, entry.Referral)
	})

	t.Run("эхо становится исходящим", func(t *testing.T) {
		entry := NewRawLogEntry(&IncomingEvent{Platform: PlatformInstagram, CounterpartyID: "u1", PlatformAccountID: "acc", IsEcho: true})
		assert.Equal(t, DirectionOutgoing, entry.Direction)
	})
}

func TestSerializeAttachments(t *testing.T) {
	assert.Equal(t, "", SerializeAttachments(nil))
	assert.Equal(t, "", SerializeAttachments([]Attachment{}))

	raw := SerializeAttachments([]Attachment{{Type: "image", URL: "http://x/1.jpg"}})
	assert.Contains(t, raw, `"type":"image"`)
	assert.Contains(t, raw, `"url":"http://x/1.jpg"`)
}
