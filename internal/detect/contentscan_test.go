package detect

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/config"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/database"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/events"
	"github.com/CodeMonkeyCybersecurity/crookedcart/internal/logger"
)

func newSQLiteStore(t *testing.T) *database.Store {
	t.Helper()

	store, err := database.NewStore(config.DatabaseConfig{
		Driver:          "sqlite3",
		DSN:             fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxConnections:  1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
	}, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func addFeedback(t *testing.T, store *database.Store, comment string) {
	t.Helper()
	err := store.CreateFeedback(context.Background(), &database.Feedback{
		ID:      uuid.NewString(),
		Comment: comment,
		Rating:  3,
	})
	require.NoError(t, err)
}

func addComplaint(t *testing.T, store *database.Store, message string) {
	t.Helper()
	err := store.CreateComplaint(context.Background(), &database.Complaint{
		ID:      uuid.NewString(),
		Message: message,
	})
	require.NoError(t, err)
}

func feedbackMutation() Event {
	return Event{Mutation: &events.MutationView{Entity: events.EntityFeedback}}
}

func TestContentScanSingleTerm(t *testing.T) {
	store := newSQLiteStore(t)
	det := NewContentScan("key", store, logger.Nop(), [][]string{{"epilogue-js"}})
	ctx := context.Background()

	assert.False(t, det.Evaluate(ctx, feedbackMutation()), "empty store matches nothing")

	addFeedback(t, store, "You are still using Epilogue-JS, that dead fork!")
	assert.True(t, det.Evaluate(ctx, feedbackMutation()), "matching is case-insensitive substring")
}

func TestContentScanConjunctionWithinGroup(t *testing.T) {
	store := newSQLiteStore(t)
	det := NewContentScan("key", store, logger.Nop(), [][]string{
		{"sanitize-html", "1.4.2"},
	})
	ctx := context.Background()

	addFeedback(t, store, "sanitize-html is outdated")
	assert.False(t, det.Evaluate(ctx, feedbackMutation()), "half the group in one row is not enough")

	addFeedback(t, store, "version 1.4.2 of something")
	assert.False(t, det.Evaluate(ctx, feedbackMutation()), "terms split across rows do not combine")

	addFeedback(t, store, "sanitize-html 1.4.2 is vulnerable to masking attacks")
	assert.True(t, det.Evaluate(ctx, feedbackMutation()))
}

func TestContentScanDisjunctionAcrossGroups(t *testing.T) {
	store := newSQLiteStore(t)
	det := NewContentScan("key", store, logger.Nop(), [][]string{
		{"sanitize-html", "1.4.2"},
		{"express-jwt", "0.1.3"},
	})
	ctx := context.Background()

	addFeedback(t, store, "express-jwt 0.1.3 has an algorithm confusion bug")
	assert.True(t, det.Evaluate(ctx, feedbackMutation()), "any complete group suffices")
}

func TestContentScanCoversComplaints(t *testing.T) {
	store := newSQLiteStore(t)
	det := NewContentScan("key", store, logger.Nop(), [][]string{{"pickle rick"}})
	ctx := context.Background()

	addComplaint(t, store, "There is a Pickle Rick hiding in your product image!")
	assert.True(t, det.Evaluate(ctx, feedbackMutation()),
		"both free-text tables are scanned regardless of which entity mutated")
}

func TestContentScanIgnoresOtherEntities(t *testing.T) {
	store := newSQLiteStore(t)
	det := NewContentScan("key", store, logger.Nop(), [][]string{{"md5"}})
	ctx := context.Background()

	addFeedback(t, store, "stop using md5 for passwords")

	productMutation := Event{Mutation: &events.MutationView{Entity: events.EntityProduct}}
	assert.False(t, det.Evaluate(ctx, productMutation), "product mutations do not trigger text scans")
	assert.False(t, det.Evaluate(ctx, Event{}), "missing mutation view is a no-op")
	assert.True(t, det.Evaluate(ctx, feedbackMutation()))
}
