// Package mongo provides a durable, MongoDB-backed implementation of
// session.Store.
package mongo

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"goa.design/clue/health"

	"github.com/deckforge/orchestrator/internal/session"
)

const (
	defaultSessionsCollection = "orchestrator_sessions"
	defaultOpTimeout          = 5 * time.Second
	clientName                = "session-mongo"
)

// Options configures the Mongo-backed Store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store is a MongoDB-backed session.Store. It additionally satisfies
// health.Pinger so it can be registered with a Clue health check.
type Store struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Store backed by MongoDB, creating required indexes.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultSessionsCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}

	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "session_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, err
	}

	return &Store{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

// Name implements health.Pinger.
func (s *Store) Name() string { return clientName }

// Ping implements health.Pinger.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

// GetOrCreate implements session.Store.
func (s *Store) GetOrCreate(ctx context.Context, sessionID, userID string) (session.Session, error) {
	if sessionID == "" {
		return session.Session{}, errors.New("session id is required")
	}

	existing, err := s.load(ctx, sessionID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		return session.Session{}, err
	}

	now := time.Now().UTC()
	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"session_id": sessionID}
	update := bson.M{
		"$setOnInsert": bson.M{
			"session_id":    sessionID,
			"user_id":       userID,
			"current_state": string(session.StateProvideGreeting),
			"history":       bson.A{},
			"created_at":    now,
			"updated_at":    now,
		},
	}
	if _, err := s.coll.UpdateOne(ctxT, filter, update, options.UpdateOne().SetUpsert(true)); err != nil {
		return session.Session{}, err
	}
	return s.load(ctx, sessionID)
}

// Save implements session.Store. It never touches the history array.
func (s *Store) Save(ctx context.Context, in session.Session) error {
	if in.ID == "" {
		return errors.New("session id is required")
	}

	doc := fromSession(in)
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	filter := bson.M{"session_id": in.ID}
	update := bson.M{
		"$set": bson.M{
			"user_id":                 doc.UserID,
			"current_state":           doc.CurrentState,
			"strawman":                doc.Strawman,
			"final_presentation_url":  doc.FinalPresentationURL,
			"active_scheduler_run":    doc.ActiveSchedulerRun,
			"updated_at":              time.Now().UTC(),
		},
	}
	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return session.ErrNotFound
	}
	return nil
}

// AppendHistory implements session.Store. Idempotent by MessageID via a
// filter that only matches when no existing entry carries the same id.
func (s *Store) AppendHistory(ctx context.Context, sessionID string, entry session.Entry) error {
	if sessionID == "" {
		return errors.New("session id is required")
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	ctxT, cancel := s.withTimeout(ctx)
	defer cancel()

	seq, err := s.nextSeq(ctxT, sessionID)
	if err != nil {
		return err
	}
	entry.SeqIndex = seq
	doc := fromEntry(entry)

	filter := bson.M{"session_id": sessionID}
	if entry.MessageID != "" {
		filter["history.message_id"] = bson.M{"$ne": entry.MessageID}
	}
	update := bson.M{
		"$push": bson.M{"history": doc},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}
	res, err := s.coll.UpdateOne(ctxT, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		// Either the session does not exist, or the entry's MessageID is
		// already present (idempotent no-op).
		if _, err := s.load(ctx, sessionID); err != nil {
			return err
		}
	}
	return nil
}

// LoadHistory implements session.Store.
func (s *Store) LoadHistory(ctx context.Context, sessionID string) ([]session.Entry, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return sess.ConversationHistory, nil
}

func (s *Store) load(ctx context.Context, sessionID string) (session.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc sessionDocument
	if err := s.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return session.Session{}, session.ErrNotFound
		}
		return session.Session{}, err
	}
	out := doc.toSession()
	sort.SliceStable(out.ConversationHistory, func(i, j int) bool {
		a, b := out.ConversationHistory[i], out.ConversationHistory[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return a.SeqIndex < b.SeqIndex
	})
	return out, nil
}

// nextSeq returns the next per-session sequence number by counting existing
// history entries under the store's timeout budget.
func (s *Store) nextSeq(ctx context.Context, sessionID string) (int64, error) {
	var doc struct {
		History []bson.Raw `bson:"history"`
	}
	if err := s.coll.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return 0, session.ErrNotFound
		}
		return 0, err
	}
	return int64(len(doc.History)) + 1, nil
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

var _ session.Store = (*Store)(nil)
var _ health.Pinger = (*Store)(nil)
