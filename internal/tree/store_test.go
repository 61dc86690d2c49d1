package tree

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// storeSuite runs the Store contract against a fresh store per subtest.
func storeSuite(t *testing.T, open func(t *testing.T) *DB) {
	t.Run("SetGet", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		msg := map[string]any{"senderId": "u1", "text": "hi", "timestamp": 100, "isRead": false}
		if err := db.Set(ctx, "chats/u1/messages/m1", msg); err != nil {
			t.Fatalf("Set: %v", err)
		}
		snap, err := db.Get(ctx, "chats/u1/messages/m1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got := snap.Child("text").StringValue(); got != "hi" {
			t.Errorf("text = %q", got)
		}
		if got := snap.Child("isRead").Value(); got != false {
			t.Errorf("isRead = %v", got)
		}

		missing, err := db.Get(ctx, "chats/nobody")
		if err != nil {
			t.Fatalf("Get missing: %v", err)
		}
		if missing.Exists() {
			t.Error("missing path exists")
		}
	})

	t.Run("SetReplacesSubtree", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		mustSet(t, db, "users/u1", map[string]any{"firstName": "Ann", "email": "ann@x.io"})
		mustSet(t, db, "users/u1", map[string]any{"firstName": "Bo"})

		snap, _ := db.Get(ctx, "users/u1")
		if !reflect.DeepEqual(snap.Keys(), []string{"firstName"}) {
			t.Errorf("keys after replace = %v", snap.Keys())
		}
	})

	t.Run("SingleFieldWrite", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		mustSet(t, db, "chats/u1/messages/m1", map[string]any{"text": "hi", "isRead": false})
		mustSet(t, db, "chats/u1/messages/m1/isRead", true)

		snap, _ := db.Get(ctx, "chats/u1/messages/m1")
		if snap.Child("isRead").Value() != true || snap.Child("text").StringValue() != "hi" {
			t.Errorf("after field write: %v", snap.Value())
		}
	})

	t.Run("WriteBelowScalarClearsIt", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		mustSet(t, db, "a/b", "scalar")
		mustSet(t, db, "a/b/c", 1)

		snap, _ := db.Get(ctx, "a/b")
		if !reflect.DeepEqual(snap.Keys(), []string{"c"}) {
			t.Errorf("a/b = %v", snap.Value())
		}
	})

	t.Run("KeysAndRemove", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		mustSet(t, db, "chats/u2/messages/m1", map[string]any{"text": "x"})
		mustSet(t, db, "chats/u1/messages/m1", map[string]any{"text": "y"})
		mustSet(t, db, "chats/u10/messages/m1", map[string]any{"text": "z"})

		keys, err := db.Keys(ctx, "chats")
		if err != nil {
			t.Fatalf("Keys: %v", err)
		}
		if !reflect.DeepEqual(keys, []string{"u1", "u10", "u2"}) {
			t.Errorf("Keys = %v", keys)
		}

		if err := db.Remove(ctx, "chats/u1"); err != nil {
			t.Fatalf("Remove: %v", err)
		}
		keys, _ = db.Keys(ctx, "chats")
		if !reflect.DeepEqual(keys, []string{"u10", "u2"}) {
			t.Errorf("Keys after remove = %v", keys)
		}

		none, _ := db.Keys(ctx, "vouchers")
		if len(none) != 0 {
			t.Errorf("Keys of missing path = %v", none)
		}
	})

	t.Run("InvalidPath", func(t *testing.T) {
		db := open(t)
		if err := db.Set(context.Background(), "vouchers/a.b", map[string]any{"x": 1}); err == nil {
			t.Error("Set with invalid path succeeded")
		}
	})

	t.Run("WatchDeliversInitialAndUpdates", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		mustSet(t, db, "chats/u1/messages/m1", map[string]any{"text": "hi"})
		sub, err := db.Watch(ctx, "chats/u1/messages")
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer sub.Close()

		waitSnapshot(t, sub, func(s Snapshot) bool { return len(s.Keys()) == 1 })

		mustSet(t, db, "chats/u1/messages/m2", map[string]any{"text": "again"})
		waitSnapshot(t, sub, func(s Snapshot) bool { return len(s.Keys()) == 2 })

		// field writes below the watched path count too
		mustSet(t, db, "chats/u1/messages/m1/isRead", true)
		waitSnapshot(t, sub, func(s Snapshot) bool {
			return s.Child("m1").Child("isRead").Value() == true
		})
	})

	t.Run("WatchIgnoresOtherPaths", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()

		sub, err := db.Watch(ctx, "chats/u1/messages")
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		defer sub.Close()
		waitSnapshot(t, sub, func(s Snapshot) bool { return !s.Exists() })

		mustSet(t, db, "chats/u2/messages/m1", map[string]any{"text": "other"})
		select {
		case ev := <-sub.C():
			t.Fatalf("unexpected event for unrelated write: %v", ev.Snapshot.Value())
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("SubscriptionClose", func(t *testing.T) {
		db := open(t)
		sub, err := db.Watch(context.Background(), "chats")
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
		sub.Close()
		for range sub.C() {
		}
	})

	t.Run("ConcurrentWritersSamePath", func(t *testing.T) {
		db := open(t)
		ctx := context.Background()
		mustSet(t, db, "chats/u1/messages/m1", map[string]any{"senderId": "u1", "text": "hi", "isRead": false})

		g, gctx := errgroup.WithContext(ctx)
		for i := 0; i < 4; i++ {
			i := i
			g.Go(func() error {
				for j := 0; j < 5; j++ {
					if err := db.Set(gctx, "chats/u1/messages/m1/isRead", true); err != nil {
						return err
					}
					text := fmt.Sprintf("w%d", i)
					if err := db.Set(gctx, "chats/u1/messages/m1", map[string]any{"senderId": "u1", "text": text, "isRead": true}); err != nil {
						return err
					}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("concurrent Set: %v", err)
		}

		keys, err := db.Keys(ctx, "chats/u1/messages/m1")
		if err != nil {
			t.Fatal(err)
		}
		sort.Strings(keys)
		if !reflect.DeepEqual(keys, []string{"isRead", "senderId", "text"}) {
			t.Errorf("keys = %v", keys)
		}
		snap, _ := db.Get(ctx, "chats/u1/messages/m1")
		if snap.Child("isRead").Value() != true {
			t.Errorf("isRead = %v", snap.Child("isRead").Value())
		}
	})

	t.Run("PushKeysSortInCreationOrder", func(t *testing.T) {
		db := open(t)
		a := db.PushKey()
		b := db.PushKey()
		if a == b || a == "" {
			t.Fatalf("push keys %q %q", a, b)
		}
		if !(a < b) {
			t.Errorf("push keys out of order: %q !< %q", a, b)
		}
	})
}

func mustSet(t *testing.T, db *DB, path string, value any) {
	t.Helper()
	if err := db.Set(context.Background(), path, value); err != nil {
		t.Fatalf("Set(%s): %v", path, err)
	}
}

// waitSnapshot reads events until one satisfies ok.
func waitSnapshot(t *testing.T, sub *Subscription, ok func(Snapshot) bool) Snapshot {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-sub.C():
			if !open {
				t.Fatal("subscription closed")
			}
			if ev.Err != nil {
				t.Fatalf("watch error: %v", ev.Err)
			}
			if ok(ev.Snapshot) {
				return ev.Snapshot
			}
		case <-timeout:
			t.Fatal("timed out waiting for snapshot")
		}
	}
}
