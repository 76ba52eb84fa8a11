package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webhook-recorder/internal/calls"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsonrw"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoConfig controls how sessions reach MongoDB.
type MongoConfig struct {
	URI        string
	Database   string
	Collection string

	// ConnectTimeout bounds connect + ping when a session is opened.
	ConnectTimeout time.Duration
}

func (c MongoConfig) withDefaults() MongoConfig {
	out := c
	if out.Database == "" {
		out.Database = "webhook"
	}
	if out.Collection == "" {
		out.Collection = "calls"
	}
	if out.ConnectTimeout <= 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	return out
}

// Mongo opens a dedicated client per session: connect, ping, and
// disconnect on Close. Nothing is pooled across operations.
type Mongo struct {
	cfg MongoConfig
}

func NewMongo(cfg MongoConfig) (*Mongo, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	return &Mongo{cfg: cfg.withDefaults()}, nil
}

func (m *Mongo) Open(ctx context.Context) (Session, error) {
	connectCtx, cancel := context.WithTimeout(ctx, m.cfg.ConnectTimeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(m.cfg.URI).
		SetConnectTimeout(m.cfg.ConnectTimeout).
		SetServerSelectionTimeout(m.cfg.ConnectTimeout)

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, connectionFailed(err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, connectionFailed(err)
	}
	coll := client.Database(m.cfg.Database).Collection(m.cfg.Collection)
	return &mongoSession{client: client, coll: coll}, nil
}

type mongoSession struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// callDocument is the persisted shape of a calls.Record.
//
// body is a queryable view of the payload; rawBody holds the captured bytes
// and is what reads rebuild the body from.
type callDocument struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Service     string             `bson:"service"`
	OriginalURL string             `bson:"originalUrl"`
	Path        string             `bson:"path"`
	BaseURL     string             `bson:"baseUrl"`
	IP          string             `bson:"ip"`
	IPs         []string           `bson:"ips"`
	Headers     map[string]any     `bson:"headers"`
	Query       map[string]any     `bson:"query"`
	Body        any                `bson:"body"`
	BodyKind    calls.BodyKind     `bson:"bodyKind"`
	RawBody     []byte             `bson:"rawBody,omitempty"`
	MoreInfo    calls.MoreInfo     `bson:"moreInfo"`
	CreatedAt   time.Time          `bson:"created_at"`
}

func toDocument(rec calls.Record) (callDocument, error) {
	body, err := rec.Body.Decoded()
	if err != nil {
		return callDocument{}, fmt.Errorf("encode body: %w", err)
	}
	kind := rec.Body.Kind
	if kind == "" {
		kind = calls.BodyEmpty
	}
	return callDocument{
		Service:     rec.Service,
		OriginalURL: rec.OriginalURL,
		Path:        rec.Path,
		BaseURL:     rec.BaseURL,
		IP:          rec.IP,
		IPs:         rec.IPs,
		Headers:     rec.Headers.Plain(),
		Query:       rec.Query.Plain(),
		Body:        body,
		BodyKind:    kind,
		RawBody:     rec.Body.Raw,
		MoreInfo:    rec.MoreInfo,
		CreatedAt:   rec.CreatedAt,
	}, nil
}

func fromDocument(doc callDocument) (calls.Record, error) {
	headers, err := calls.FieldsFromPlain(normalizeArrays(doc.Headers))
	if err != nil {
		return calls.Record{}, fmt.Errorf("headers: %w", err)
	}
	query, err := calls.FieldsFromPlain(normalizeArrays(doc.Query))
	if err != nil {
		return calls.Record{}, fmt.Errorf("query: %w", err)
	}
	body, err := documentBody(doc)
	if err != nil {
		return calls.Record{}, fmt.Errorf("body: %w", err)
	}
	ips := doc.IPs
	if ips == nil {
		ips = []string{}
	}
	return calls.Record{
		Service:     doc.Service,
		ID:          doc.ID.Hex(),
		OriginalURL: doc.OriginalURL,
		Path:        doc.Path,
		BaseURL:     doc.BaseURL,
		IP:          doc.IP,
		IPs:         ips,
		Headers:     headers,
		Query:       query,
		Body:        body,
		MoreInfo:    doc.MoreInfo,
		CreatedAt:   doc.CreatedAt.UTC(),
	}, nil
}

// documentBody prefers the captured bytes. Documents written without them
// fall back to the decoded view.
func documentBody(doc callDocument) (calls.Body, error) {
	if len(doc.RawBody) > 0 {
		return calls.BodyFromRaw(doc.BodyKind, doc.RawBody)
	}
	return calls.BodyFromValue(doc.BodyKind, doc.Body)
}

// normalizeArrays turns driver array values (primitive.A) into []any.
func normalizeArrays(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if a, ok := v.(primitive.A); ok {
			out[k] = []any(a)
			continue
		}
		out[k] = v
	}
	return out
}

// decodeDocument decodes raw BSON with embedded documents as maps, so the
// headers and the fallback body view convert back to JSON objects rather
// than key/value pair lists.
func decodeDocument(raw bson.Raw) (calls.Record, error) {
	dec, err := bson.NewDecoder(bsonrw.NewBSONDocumentReader(raw))
	if err != nil {
		return calls.Record{}, err
	}
	dec.DefaultDocumentM()
	var doc callDocument
	if err := dec.Decode(&doc); err != nil {
		return calls.Record{}, err
	}
	return fromDocument(doc)
}

func (s *mongoSession) Insert(ctx context.Context, rec calls.Record) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", writeFailed(err)
	}
	doc, err := toDocument(rec)
	if err != nil {
		return "", writeFailed(err)
	}
	doc.ID = primitive.NewObjectID()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return "", writeFailed(err)
	}
	return doc.ID.Hex(), nil
}

func (s *mongoSession) FindAll(ctx context.Context, service string) ([]calls.Record, error) {
	cur, err := s.coll.Find(ctx, bson.D{{Key: "service", Value: service}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]calls.Record, 0)
	for cur.Next(ctx) {
		rec, err := decodeDocument(cur.Current)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *mongoSession) FindOne(ctx context.Context, service, id string) (calls.Record, bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		// Not an id this store could have assigned.
		return calls.Record{}, false, nil
	}
	raw, err := s.coll.FindOne(ctx, bson.D{
		{Key: "service", Value: service},
		{Key: "_id", Value: oid},
	}).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return calls.Record{}, false, nil
		}
		return calls.Record{}, false, err
	}
	rec, err := decodeDocument(raw)
	if err != nil {
		return calls.Record{}, false, err
	}
	return rec, true, nil
}

func (s *mongoSession) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
