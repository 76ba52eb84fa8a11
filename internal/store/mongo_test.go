package store

import (
	"testing"

	"webhook-recorder/internal/calls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestMongoDocument_RoundTrip(t *testing.T) {
	rec := sampleRecord("github")
	captured := []byte(`{"zeta":1, "alpha":2.0,"big":12345678901234567890,"nested":{"list":[1,"two",true]}}`)
	rec.Body = calls.ParseBody("application/json", captured)
	rec.IPs = []string{"203.0.113.1"}
	rec.MoreInfo = calls.MoreInfo{
		Protocol:   "https",
		Method:     "POST",
		Subdomains: []string{"hooks"},
		Socket:     calls.Socket{RemoteAddress: "203.0.113.1", RemotePort: 443, RemoteFamily: "IPv4"},
		Version:    "1.1",
	}

	doc, err := toDocument(rec)
	require.NoError(t, err)
	doc.ID = primitive.NewObjectID()

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	back, err := decodeDocument(raw)
	require.NoError(t, err)

	assert.Equal(t, doc.ID.Hex(), back.ID)
	assert.Equal(t, rec.Service, back.Service)
	assert.Equal(t, rec.Headers, back.Headers)
	assert.Equal(t, rec.Query, back.Query)
	assert.Equal(t, rec.IPs, back.IPs)
	assert.Equal(t, rec.MoreInfo, back.MoreInfo)
	assert.True(t, rec.CreatedAt.Equal(back.CreatedAt))
	assert.Equal(t, calls.BodyJSON, back.Body.Kind)
	assert.Equal(t, string(captured), string(back.Body.Value))

	replay, err := back.Body.Payload()
	require.NoError(t, err)
	assert.Equal(t, captured, replay)
}

func TestMongoDocument_LegacyDocumentWithoutRawBody(t *testing.T) {
	rec := sampleRecord("github")
	doc, err := toDocument(rec)
	require.NoError(t, err)
	doc.ID = primitive.NewObjectID()
	doc.RawBody = nil

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)

	back, err := decodeDocument(raw)
	require.NoError(t, err)
	assert.Equal(t, calls.BodyJSON, back.Body.Kind)
	assert.JSONEq(t, `{"event":"push"}`, string(back.Body.Value))
}

func TestMongoDocument_TextAndEmptyBodies(t *testing.T) {
	bodies := []calls.Body{
		calls.TextBody("<xml/>"),
		calls.ParseBody("application/x-www-form-urlencoded", []byte("b=2&a=1&a=0")),
		calls.EmptyBody(),
	}
	for _, body := range bodies {
		rec := sampleRecord("s")
		rec.Body = body

		doc, err := toDocument(rec)
		require.NoError(t, err)
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)

		back, err := decodeDocument(raw)
		require.NoError(t, err)
		assert.Equal(t, body.Kind, back.Body.Kind)

		want, _ := body.Payload()
		got, err := back.Body.Payload()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestNewMongo_RequiresURI(t *testing.T) {
	_, err := NewMongo(MongoConfig{})
	assert.Error(t, err)

	m, err := NewMongo(MongoConfig{URI: "mongodb://localhost:27017"})
	require.NoError(t, err)
	assert.Equal(t, "webhook", m.cfg.Database)
	assert.Equal(t, "calls", m.cfg.Collection)
}
