package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// dedupKeySep joins owner id and memory text into the stable upsert key for
// long-term memory rows.
const dedupKeySep = "\x1f"

// Client is the typed facade over a Driver. It maps the engine's record types
// onto collection objects and serializes read-modify-write cycles on counters
// through per-key locks, so concurrent requests never lose an increment.
type Client struct {
	driver Driver
	logger *zap.Logger

	locks keyedMutex
}

// NewClient creates a Client backed by the given driver.
func NewClient(driver Driver, logger *zap.Logger) *Client {
	return &Client{
		driver: driver,
		logger: logger,
	}
}

// Driver returns the underlying driver.
func (c *Client) Driver() Driver {
	return c.driver
}

// Close releases the underlying driver.
func (c *Client) Close() error {
	return c.driver.Close()
}

// CollectionForOwner returns the long-term memory collection owning memories
// for the given user id. The agent's own memories live in a separate
// collection keyed by the self sentinel.
func CollectionForOwner(owner string) string {
	if owner == SelfUserID {
		return CollectionAgentSelfMemory
	}
	return CollectionLongTermMemory
}

// Profile fetches the profile for userID. Returns ErrNotFound if the user has
// never been seen.
func (c *Client) Profile(ctx context.Context, userID string) (*UserProfile, error) {
	obj, err := c.driver.FetchOne(ctx, CollectionUserProfile, propUserID, userID)
	if err != nil {
		return nil, err
	}

	profile, err := profileFromObject(obj)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", userID, err)
	}

	return profile, nil
}

// SaveProfile upserts the full profile record keyed by user id.
func (c *Client) SaveProfile(ctx context.Context, profile *UserProfile) error {
	props, err := profile.props()
	if err != nil {
		return err
	}

	_, err = c.driver.Upsert(ctx, CollectionUserProfile, propUserID, profile.UserID, props)
	return err
}

// EnsureProfile fetches the profile for userID, creating a fresh one with the
// given display name on first contact.
func (c *Client) EnsureProfile(ctx context.Context, userID, displayName string) (*UserProfile, error) {
	unlock := c.locks.lock(profileLockKey(userID))
	defer unlock()

	profile, err := c.Profile(ctx, userID)
	if err == nil {
		return profile, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}

	profile = &UserProfile{
		UserID:      userID,
		DisplayName: displayName,
		Memory:      []string{},
	}
	if err := c.SaveProfile(ctx, profile); err != nil {
		return nil, err
	}

	c.logger.Info("created profile", zap.String("user_id", userID))

	return profile, nil
}

// BumpInteractions increments the profile's interaction counter by one.
// The read-modify-write runs under the profile's key lock.
func (c *Client) BumpInteractions(ctx context.Context, userID string) error {
	unlock := c.locks.lock(profileLockKey(userID))
	defer unlock()

	profile, err := c.Profile(ctx, userID)
	if err != nil {
		return err
	}

	profile.InteractionCount++

	return c.SaveProfile(ctx, profile)
}

// AppendProfileMemory appends facts to the profile's ordered memory list,
// skipping any fact already present verbatim. Runs under the profile's key
// lock so concurrent appends never clobber each other.
func (c *Client) AppendProfileMemory(ctx context.Context, userID string, facts []string) error {
	if len(facts) == 0 {
		return nil
	}

	unlock := c.locks.lock(profileLockKey(userID))
	defer unlock()

	profile, err := c.Profile(ctx, userID)
	if err != nil {
		return err
	}

	existing := make(map[string]bool, len(profile.Memory))
	for _, m := range profile.Memory {
		existing[m] = true
	}

	appended := 0
	for _, fact := range facts {
		if existing[fact] {
			continue
		}
		profile.Memory = append(profile.Memory, fact)
		existing[fact] = true
		appended++
	}

	if appended == 0 {
		return nil
	}

	return c.SaveProfile(ctx, profile)
}

// ApplyProfileUpdates sets the whitelisted mutable profile fields named in
// updates. Unknown field names are logged and skipped rather than failing the
// whole write-back.
func (c *Client) ApplyProfileUpdates(ctx context.Context, userID string, updates map[string]string) error {
	if len(updates) == 0 {
		return nil
	}

	unlock := c.locks.lock(profileLockKey(userID))
	defer unlock()

	profile, err := c.Profile(ctx, userID)
	if err != nil {
		return err
	}

	changed := false
	for field, value := range updates {
		switch field {
		case propDisplayName:
			profile.DisplayName = value
		case propPronouns:
			profile.Pronouns = value
		case propRole:
			profile.Role = value
		case propRelationshipNotes:
			profile.RelationshipNotes = value
		default:
			c.logger.Warn("skipping unknown profile field",
				zap.String("user_id", userID),
				zap.String("field", field))
			continue
		}
		changed = true
	}

	if !changed {
		return nil
	}

	return c.SaveProfile(ctx, profile)
}

// RecentConversations returns up to limit conversation summaries for userID,
// newest first.
func (c *Client) RecentConversations(ctx context.Context, userID string, limit int) ([]RecentConversation, error) {
	objs, err := c.driver.FetchMany(ctx, CollectionRecentConversation, propUserID, userID, limit, true)
	if err != nil {
		return nil, err
	}

	convos := make([]RecentConversation, 0, len(objs))
	for i := range objs {
		convos = append(convos, conversationFromObject(&objs[i]))
	}

	return convos, nil
}

// AppendConversation inserts a new conversation summary for userID. The log
// is append-only; entries are never updated in place.
func (c *Client) AppendConversation(ctx context.Context, userID, summary string) error {
	_, err := c.driver.Insert(ctx, CollectionRecentConversation, map[string]any{
		propUserID:    userID,
		propSummary:   summary,
		propCreatedAt: time.Now().UTC().Format(time.RFC3339),
	})
	return err
}

// LongTermMemories returns up to limit promoted memories owned by owner,
// newest first.
func (c *Client) LongTermMemories(ctx context.Context, owner string, limit int) ([]LongTermMemory, error) {
	objs, err := c.driver.FetchMany(ctx, CollectionForOwner(owner), propUserID, owner, limit, true)
	if err != nil {
		return nil, err
	}

	memories := make([]LongTermMemory, 0, len(objs))
	for i := range objs {
		memories = append(memories, longTermFromObject(&objs[i]))
	}

	return memories, nil
}

// InsertLongTermMemory stores a newly promoted fact for owner. The text is
// immutable once stored. The reinforced counter starts at 1: promotion itself
// is the first reinforcement.
func (c *Client) InsertLongTermMemory(ctx context.Context, owner, text string) (string, error) {
	key := owner + dedupKeySep + text
	return c.driver.Upsert(ctx, CollectionForOwner(owner), propDedupKey, key, map[string]any{
		propUserID:          owner,
		propMemoryText:      text,
		propReinforcedCount: 1,
		propDedupKey:        key,
		propCreatedAt:       time.Now().UTC().Format(time.RFC3339),
	})
}

// Reinforce increments the reinforced counter on the stored memory matching
// text for owner and returns the new count. Returns ErrNotFound if no such
// memory exists. Runs under the memory's key lock.
func (c *Client) Reinforce(ctx context.Context, owner, text string) (int, error) {
	key := owner + dedupKeySep + text

	unlock := c.locks.lock("memory:" + key)
	defer unlock()

	collection := CollectionForOwner(owner)
	obj, err := c.driver.FetchOne(ctx, collection, propDedupKey, key)
	if err != nil {
		return 0, err
	}

	mem := longTermFromObject(obj)
	mem.ReinforcedCount++

	_, err = c.driver.Upsert(ctx, collection, propDedupKey, key, map[string]any{
		propUserID:          mem.UserID,
		propMemoryText:      mem.MemoryText,
		propReinforcedCount: mem.ReinforcedCount,
		propDedupKey:        key,
		propCreatedAt:       mem.CreatedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return 0, err
	}

	return mem.ReinforcedCount, nil
}

// RecordObservation buffers one candidate-fact sighting for userID.
func (c *Client) RecordObservation(ctx context.Context, userID, fact string, observedAt time.Time) error {
	_, err := c.driver.Insert(ctx, CollectionCandidateFact, map[string]any{
		propUserID:     userID,
		propFactText:   fact,
		propObservedAt: observedAt.UTC().Format(time.RFC3339),
	})
	return err
}

// Observations returns the buffered candidate-fact sightings for userID.
// Sightings with unparsable timestamps are logged and skipped so one bad row
// never blocks promotion for the rest.
func (c *Client) Observations(ctx context.Context, userID string, limit int) ([]CandidateObservation, error) {
	objs, err := c.driver.FetchMany(ctx, CollectionCandidateFact, propUserID, userID, limit, true)
	if err != nil {
		return nil, err
	}

	observations := make([]CandidateObservation, 0, len(objs))
	for i := range objs {
		obs, err := observationFromObject(&objs[i])
		if err != nil {
			c.logger.Warn("skipping observation",
				zap.String("user_id", userID),
				zap.Error(err))
			continue
		}
		observations = append(observations, obs)
	}

	return observations, nil
}

// ConsumeObservations deletes every buffered sighting of fact for userID.
// Called once a fact has been promoted or has reinforced an existing memory,
// so the same sightings are never counted toward a later sweep. Returns the
// number of rows removed.
func (c *Client) ConsumeObservations(ctx context.Context, userID, fact string) (int, error) {
	objs, err := c.driver.FetchMany(ctx, CollectionCandidateFact, propUserID, userID, 0, false)
	if err != nil {
		return 0, err
	}

	consumed := 0
	for i := range objs {
		if objs[i].String(propFactText) != fact {
			continue
		}
		if err := c.driver.Delete(ctx, CollectionCandidateFact, objs[i].ID); err != nil {
			return consumed, err
		}
		consumed++
	}

	return consumed, nil
}

// PruneObservations deletes buffered sightings observed before cutoff.
// Returns the number of rows removed.
func (c *Client) PruneObservations(ctx context.Context, userID string, cutoff time.Time) (int, error) {
	objs, err := c.driver.FetchMany(ctx, CollectionCandidateFact, propUserID, userID, 0, false)
	if err != nil {
		return 0, err
	}

	pruned := 0
	for i := range objs {
		obs, err := observationFromObject(&objs[i])
		if err != nil {
			// Unparsable rows are unpromotable forever; drop them too.
			if derr := c.driver.Delete(ctx, CollectionCandidateFact, objs[i].ID); derr == nil {
				pruned++
			}
			continue
		}
		if !obs.ObservedAt.Before(cutoff) {
			continue
		}
		if err := c.driver.Delete(ctx, CollectionCandidateFact, obs.ID); err != nil {
			return pruned, err
		}
		pruned++
	}

	return pruned, nil
}

func profileLockKey(userID string) string {
	return "profile:" + userID
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// lock acquires the mutex for key and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
