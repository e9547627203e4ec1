// Periscope - Social VR Presence Mirror
// Copyright 2026 Periscope Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/periscope-app/periscope

package store

import (
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/periscope-app/periscope/internal/bus"
	"github.com/periscope-app/periscope/internal/event"
	"github.com/periscope-app/periscope/internal/logging"
	"github.com/periscope-app/periscope/internal/models"
)

// fakeClock is a manually advanced clock. After hands out channels the
// test fires explicitly.
type fakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending []chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan time.Time, 1)
	c.pending = append(c.pending, ch)
	return ch
}

// Fire releases every pending timer.
func (c *fakeClock) Fire() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	now := c.now
	c.mu.Unlock()
	for _, ch := range pending {
		ch <- now
	}
}

func newTestStore(t *testing.T) (*Store, *bus.Bus, *fakeClock) {
	t.Helper()
	logger := logging.NewTestLogger(nil)
	b := bus.New(logger)
	clock := newFakeClock()
	s := New(b, Options{Clock: clock, Logger: logger})
	return s, b, clock
}

// capture collects the first payload of every publish on a topic.
type capture struct {
	mu     sync.Mutex
	events []any
}

func collect(b *bus.Bus, topic string) *capture {
	c := &capture{}
	b.Subscribe(topic, func(args ...any) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if len(args) > 0 {
			c.events = append(c.events, args[0])
		} else {
			c.events = append(c.events, nil)
		}
	})
	return c
}

func (c *capture) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *capture) at(i int) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events[i]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestApplyUserCreateAndMerge(t *testing.T) {
	s, _, _ := newTestStore(t)

	ref, err := s.ApplyUser([]byte(`{"id":"usr_1","displayName":"alice","status":"active","bio":"hi"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ref.DisplayName != "alice" {
		t.Errorf("DisplayName = %q", ref.DisplayName)
	}

	again, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"busy"}`))
	if err != nil {
		t.Fatal(err)
	}
	if again != ref {
		t.Error("merge must return the same record instance")
	}
	if ref.Status != "busy" {
		t.Errorf("Status = %q, want busy", ref.Status)
	}
	if ref.DisplayName != "alice" || ref.Bio != "hi" {
		t.Error("untouched fields must survive the merge")
	}
}

func TestApplyUserMissingID(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.ApplyUser([]byte(`{"displayName":"ghost"}`)); err != ErrMissingID {
		t.Errorf("err = %v, want ErrMissingID", err)
	}
}

func TestApplyUserIdempotent(t *testing.T) {
	s, b, clock := newTestStore(t)
	updates := collect(b, event.TopicUserUpdate)

	payload := []byte(`{"id":"usr_1","displayName":"alice","status":"active"}`)
	if _, err := s.ApplyUser(payload); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyUser(payload); err != nil {
		t.Fatal(err)
	}
	clock.Fire()
	time.Sleep(10 * time.Millisecond)
	if updates.len() != 0 {
		t.Errorf("identical re-apply queued %d updates, want 0", updates.len())
	}
}

func TestApplyUserTagNormalization(t *testing.T) {
	s, _, _ := newTestStore(t)
	ref, err := s.ApplyUser([]byte(`{"id":"usr_1","tags":["b","a","b","a"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(ref.Tags) != 2 || ref.Tags[0] != "a" || ref.Tags[1] != "b" {
		t.Errorf("Tags = %v, want [a b]", ref.Tags)
	}
}

func TestApplyUserStatusDescriptionTruncation(t *testing.T) {
	s, _, _ := newTestStore(t)
	long := "0123456789012345678901234567890123456789"
	if _, err := s.ApplyUser([]byte(`{"id":"usr_1"}`)); err != nil {
		t.Fatal(err)
	}
	ref, err := s.ApplyUser([]byte(`{"id":"usr_1","statusDescription":"` + long + `"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len([]rune(ref.StatusDescription)) != 32 {
		t.Errorf("StatusDescription length = %d, want 32", len([]rune(ref.StatusDescription)))
	}
}

func TestUserUpdateDebounceCoalesces(t *testing.T) {
	s, b, clock := newTestStore(t)
	updates := collect(b, event.TopicUserUpdate)

	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"active","statusDescription":"a"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"active","statusDescription":"b"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"join me","statusDescription":"b"}`)); err != nil {
		t.Fatal(err)
	}

	clock.Fire()
	waitFor(t, func() bool { return updates.len() == 1 })

	update := updates.at(0).(*UserUpdate)
	if update.User.ID != "usr_1" {
		t.Errorf("update for %q", update.User.ID)
	}
	change, ok := update.Changes["statusDescription"]
	if !ok {
		t.Fatal("statusDescription change missing")
	}
	// Coalesced: oldest old, newest new.
	if change.Old != "a" || change.New != "b" {
		t.Errorf("statusDescription change = %+v", change)
	}
	if _, ok := update.Changes["status"]; !ok {
		t.Error("status change missing from coalesced update")
	}
}

func TestUserUpdateSkippedWhenBothOffline(t *testing.T) {
	s, b, clock := newTestStore(t)
	updates := collect(b, event.TopicUserUpdate)

	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"offline","statusDescription":"a"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"offline","statusDescription":"b"}`)); err != nil {
		t.Fatal(err)
	}
	clock.Fire()
	time.Sleep(10 * time.Millisecond)
	if updates.len() != 0 {
		t.Errorf("offline-to-offline change queued %d updates, want 0", updates.len())
	}
}

func TestUserUpdateLocationElapsed(t *testing.T) {
	s, b, clock := newTestStore(t)
	updates := collect(b, event.TopicUserUpdate)

	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"active","location":"wrld_1:1"}`)); err != nil {
		t.Fatal(err)
	}
	clock.Advance(10 * time.Minute)
	if _, err := s.ApplyUser([]byte(`{"id":"usr_1","status":"active","location":"wrld_2:2"}`)); err != nil {
		t.Fatal(err)
	}

	clock.Fire()
	waitFor(t, func() bool { return updates.len() == 1 })

	update := updates.at(0).(*UserUpdate)
	change, ok := update.Changes["location"]
	if !ok {
		t.Fatal("location change missing")
	}
	if change.Elapsed != 10*time.Minute {
		t.Errorf("Elapsed = %v, want 10m", change.Elapsed)
	}
	if change.New != "wrld_2:2" || change.Old != "wrld_1:1" {
		t.Errorf("location change = %+v", change)
	}
}

func TestApplyCurrentUserLoginOnce(t *testing.T) {
	s, b, _ := newTestStore(t)
	logins := collect(b, event.TopicLogin)

	cu, err := s.ApplyCurrentUser([]byte(`{"id":"usr_me","displayName":"me","tags":["system_supporter"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if !cu.IsSupporter {
		t.Error("IsSupporter = false")
	}
	if !s.LoggedIn() {
		t.Error("LoggedIn = false after apply")
	}
	if logins.len() != 1 {
		t.Fatalf("login events = %d, want 1", logins.len())
	}

	if _, err := s.ApplyCurrentUser([]byte(`{"id":"usr_me","status":"active"}`)); err != nil {
		t.Fatal(err)
	}
	if logins.len() != 1 {
		t.Errorf("second apply published login again")
	}
}

func TestApplyUserOverlaysCurrentUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	if _, err := s.ApplyCurrentUser([]byte(`{"id":"usr_me","status":"busy","statusDescription":"afk","state":"online"}`)); err != nil {
		t.Fatal(err)
	}
	ref, err := s.ApplyUser([]byte(`{"id":"usr_me","displayName":"me"}`))
	if err != nil {
		t.Fatal(err)
	}
	if ref.Status != "busy" || ref.StatusDescription != "afk" || ref.State != "online" {
		t.Errorf("account fields not overlaid: %+v", ref)
	}
}

func TestNotificationSweep(t *testing.T) {
	s, b, _ := newTestStore(t)
	deleted := collect(b, event.TopicNotificationDeleted)

	if _, err := s.ApplyNotification([]byte(`{"id":"not_1","type":"invite"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyNotification([]byte(`{"id":"not_2","type":"invite"}`)); err != nil {
		t.Fatal(err)
	}

	s.MarkNotificationsExpired()
	// Only not_1 comes back from the refresh.
	if _, err := s.ApplyNotification([]byte(`{"id":"not_1","type":"invite"}`)); err != nil {
		t.Fatal(err)
	}
	s.SweepNotifications()

	n1, _ := s.GetNotification("not_1")
	if n1.IsDeleted {
		t.Error("refreshed record must survive the sweep")
	}
	n2, _ := s.GetNotification("not_2")
	if !n2.IsDeleted {
		t.Error("stale record must be soft-deleted")
	}
	if deleted.len() != 1 {
		t.Errorf("deletion events = %d, want 1", deleted.len())
	}

	// A second sweep is quiet: already-deleted records do not re-fire.
	s.MarkNotificationsExpired()
	if _, err := s.ApplyNotification([]byte(`{"id":"not_1","type":"invite"}`)); err != nil {
		t.Fatal(err)
	}
	s.SweepNotifications()
	if deleted.len() != 1 {
		t.Errorf("deletion events after second sweep = %d, want 1", deleted.len())
	}
}

func TestFavoriteSlotBinding(t *testing.T) {
	s, _, _ := newTestStore(t)
	ref, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_2","tags":["group_0"]}`))
	if err != nil {
		t.Fatal(err)
	}
	if ref.GroupKey != "friend:group_0" {
		t.Errorf("GroupKey = %q", ref.GroupKey)
	}
	if ref.Group == nil || ref.Group.Count != 1 {
		t.Fatalf("slot binding = %+v", ref.Group)
	}

	// Re-apply must not double count.
	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_2","tags":["group_0"]}`)); err != nil {
		t.Fatal(err)
	}
	if ref.Group.Count != 1 {
		t.Errorf("Count after re-apply = %d, want 1", ref.Group.Count)
	}

	if !s.IsFriendFavorite("usr_2") {
		t.Error("IsFriendFavorite(usr_2) = false")
	}
}

func TestDeleteFavorite(t *testing.T) {
	s, b, _ := newTestStore(t)
	deleted := collect(b, event.TopicFavoriteDeleted)

	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_2","tags":["group_0"]}`)); err != nil {
		t.Fatal(err)
	}
	s.DeleteFavorite("usr_2")

	if s.IsFriendFavorite("usr_2") {
		t.Error("favorite still live after delete")
	}
	if deleted.len() != 1 {
		t.Errorf("deletion events = %d, want 1", deleted.len())
	}
	if deleted.at(0).(*models.Favorite).ID != "fvt_1" {
		t.Error("deletion event carries the wrong record")
	}
	for _, sl := range s.FavoriteGroupSlots() {
		if sl.Key == "friend:group_0" && sl.Count != 0 {
			t.Errorf("slot count = %d, want 0", sl.Count)
		}
	}

	// Deleting again is a no-op.
	s.DeleteFavorite("usr_2")
	if deleted.len() != 1 {
		t.Error("second delete re-fired the event")
	}
}

func TestClearFavoriteGroupCascade(t *testing.T) {
	s, b, _ := newTestStore(t)
	deleted := collect(b, event.TopicFavoriteDeleted)

	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_1","tags":["group_0"]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_2","type":"friend","favoriteId":"usr_2","tags":["group_0"]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_3","type":"friend","favoriteId":"usr_3","tags":["group_1"]}`)); err != nil {
		t.Fatal(err)
	}

	s.ClearFavoriteGroup("friend", "group_0")

	if deleted.len() != 2 {
		t.Errorf("deletion events = %d, want 2", deleted.len())
	}
	if s.IsFriendFavorite("usr_1") || s.IsFriendFavorite("usr_2") {
		t.Error("cleared group favorites still live")
	}
	if !s.IsFriendFavorite("usr_3") {
		t.Error("other group's favorite was cleared too")
	}
}

func TestRebuildFavoriteGroups(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, err := s.ApplyFavoriteGroup([]byte(`{"id":"fvg_1","type":"friend","name":"custom","displayName":"Custom"}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_1","tags":["custom"]}`)); err != nil {
		t.Fatal(err)
	}

	s.RebuildFavoriteGroups()

	var bound *models.FavoriteGroupSlot
	for _, slot := range s.FavoriteGroupSlots() {
		if slot.Key == "friend:custom" {
			bound = slot
		}
	}
	if bound == nil {
		t.Fatal("renamed slot missing after rebuild")
	}
	if bound.DisplayName != "Custom" || bound.Count != 1 {
		t.Errorf("slot = %+v", bound)
	}

	fav, _ := s.GetFavoriteByObject("usr_1")
	if fav.Group != bound {
		t.Error("favorite not re-bound to the rebuilt slot")
	}
}

func TestClearOnLoginAdvancesGeneration(t *testing.T) {
	s, _, _ := newTestStore(t)

	if _, err := s.ApplyFavorite([]byte(`{"id":"fvt_1","type":"friend","favoriteId":"usr_1","tags":["group_0"]}`)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.ApplyNotification([]byte(`{"id":"not_1"}`)); err != nil {
		t.Fatal(err)
	}

	gen := s.Generation()
	s.ClearOnLogin()

	if s.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", s.Generation(), gen+1)
	}
	if s.IsFriendFavorite("usr_1") {
		t.Error("favorites survived the clear")
	}
	if _, ok := s.GetNotification("not_1"); ok {
		t.Error("notifications survived the clear")
	}
}

func TestWireAppliesBusTraffic(t *testing.T) {
	s, b, _ := newTestStore(t)
	s.Wire()

	b.Publish(event.TopicUser, event.Raw{ID: "usr_1", JSON: []byte(`{"id":"usr_1","displayName":"alice"}`)})
	if ref, ok := s.GetUser("usr_1"); !ok || ref.DisplayName != "alice" {
		t.Error("USER publish did not reach the store")
	}

	b.Publish(event.TopicNotificationList, event.List{Items: []json.RawMessage{
		json.RawMessage(`{"id":"not_1","type":"invite"}`),
	}})
	if _, ok := s.GetNotification("not_1"); !ok {
		t.Error("NOTIFICATION:LIST publish did not reach the store")
	}

	b.Publish(event.TopicFavoriteAvatarList, event.List{Items: []json.RawMessage{
		json.RawMessage(`{"id":"avtr_1","name":"ok"}`),
		json.RawMessage(`{"id":"avtr_2","releaseStatus":"hidden"}`),
	}})
	if _, ok := s.GetAvatar("avtr_1"); !ok {
		t.Error("favorite avatar page did not reach the store")
	}
	if _, ok := s.GetAvatar("avtr_2"); ok {
		t.Error("hidden placeholder avatar must be skipped")
	}
}
